// Package stream provides the distribution layer: a bounded broadcast ring
// with per-consumer cursors and explicit overflow, plus a fan-in multiplexer
// for merging several transport connections into one logical stream.
package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"bookflow/logger"
	"bookflow/models"
)

// Broadcaster fans items out to any number of independent subscribers over
// a bounded ring buffer. Publishing never blocks and memory never grows past
// the configured capacity: a subscriber that falls behind has its oldest
// unread items dropped and learns about it through an OverflowError on its
// next receive. A consumer that misses diffs will then hit the aggregator's
// successor check, which is the sanctioned trigger to re-snapshot, so
// backpressure lands on the protocol layer instead of being absorbed
// silently.
type Broadcaster struct {
	mu sync.Mutex

	buf  []models.Item
	cap  int64
	head int64 // sequence of the next published item
	size int64 // number of retained items, <= cap

	subs   map[string]*Subscription
	closed bool

	log *logger.Log
}

// Subscription is one consumer's cursor into the broadcast ring.
type Subscription struct {
	id     string
	b      *Broadcaster
	cursor int64
	notify chan struct{}
	closed bool
}

func NewBroadcaster(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Broadcaster{
		buf:  make([]models.Item, capacity),
		cap:  int64(capacity),
		subs: make(map[string]*Subscription),
		log:  logger.GetLogger(),
	}
	b.log.WithComponent("broadcast").WithFields(logger.Fields{
		"capacity": capacity,
	}).Debug("broadcaster initialized")
	return b
}

// Publish appends an item to the ring and wakes every subscriber. It never
// blocks; the oldest retained item is overwritten once the ring is full.
func (b *Broadcaster) Publish(item models.Item) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buf[b.head%b.cap] = item
	b.head++
	if b.size < b.cap {
		b.size++
	}
	for _, sub := range b.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Subscribe creates an independent cursor positioned at the next published
// item. Existing ring contents are not replayed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	sub := &Subscription{
		id:     uuid.New().String(),
		b:      b,
		cursor: b.head,
		notify: make(chan struct{}, 1),
		closed: b.closed,
	}
	if !b.closed {
		b.subs[sub.id] = sub
	}
	b.mu.Unlock()
	return sub
}

// Close stops the broadcaster. Subscribers drain their remaining items and
// then receive ErrDisconnected.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
	b.log.WithComponent("broadcast").Debug("broadcaster closed")
}

// ID identifies the subscription in logs and stats.
func (s *Subscription) ID() string {
	return s.id
}

// Recv returns the next item for this cursor. When the cursor has fallen
// out of the retained window it is advanced to the oldest retained item and
// an OverflowError reporting the miss count is returned instead of an item.
// After the broadcaster closes and the cursor drains, Recv returns
// ErrDisconnected.
func (s *Subscription) Recv(ctx context.Context) (models.Item, error) {
	for {
		s.b.mu.Lock()
		if s.closed {
			s.b.mu.Unlock()
			return models.Item{}, models.ErrDisconnected
		}

		oldest := s.b.head - s.b.size
		if s.cursor < oldest {
			missed := oldest - s.cursor
			s.cursor = oldest
			s.b.mu.Unlock()
			return models.Item{}, &models.OverflowError{Missed: missed}
		}
		if s.cursor < s.b.head {
			item := s.b.buf[s.cursor%s.b.cap]
			s.cursor++
			s.b.mu.Unlock()
			return item, nil
		}
		if s.b.closed {
			s.b.mu.Unlock()
			return models.Item{}, models.ErrDisconnected
		}
		s.b.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return models.Item{}, ctx.Err()
		}
	}
}

// Close detaches the cursor. Other subscribers and the producer are not
// affected.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	if !s.closed {
		s.closed = true
		delete(s.b.subs, s.id)
	}
	s.b.mu.Unlock()
}

// Pending reports how many published items this cursor has not yet read.
func (s *Subscription) Pending() int64 {
	s.b.mu.Lock()
	n := s.b.head - s.cursor
	s.b.mu.Unlock()
	return n
}
