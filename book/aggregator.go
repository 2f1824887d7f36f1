// Package book implements the order-book reconstruction engine: per-market
// aggregators that merge one REST snapshot with an ordered diff stream, and
// the synchronizer that shares them across tasks.
package book

import (
	"bookflow/models"
)

// Mode selects how an aggregator materializes books for consumers.
type Mode int

const (
	// TopOfBook materializes only the best bid and best ask.
	TopOfBook Mode = iota
	// FullDepth materializes every retained level.
	FullDepth
)

// Aggregator reconstructs one market's book from a snapshot plus diffs.
//
// Diffs may start arriving before the snapshot: subscribe-then-fetch is the
// only order that cannot miss the first diffs, so pre-snapshot diffs are
// buffered and drained when the snapshot lands. Once synchronized, every
// diff must continue the sequence exactly (FirstUpdateID == last applied id
// + 1); a gap fails closed and the caller is expected to re-snapshot.
//
// Aggregator is not safe for concurrent use; the synchronizer guards each
// instance with its own mutex.
type Aggregator struct {
	market models.Market
	mode   Mode

	bids side
	asks side

	lastUpdateID int64
	buffer       []models.OrderBookDiff
	synchronized bool
}

func NewAggregator(market models.Market, mode Mode) *Aggregator {
	return &Aggregator{
		market: market,
		mode:   mode,
		bids:   newSide(true),
		asks:   newSide(false),
	}
}

// Synchronized reports whether the anchoring snapshot has been applied.
func (a *Aggregator) Synchronized() bool {
	return a.synchronized
}

// LastUpdateID returns the id of the last applied update.
func (a *Aggregator) LastUpdateID() int64 {
	return a.lastUpdateID
}

// Snapshot anchors the aggregator: it loads the full snapshot, then drains
// the pre-snapshot buffer. Buffered diffs whose FinalUpdateID does not
// exceed the snapshot's anchor are stale and dropped; the rest are applied
// in arrival order. A market is anchored at most once per session.
func (a *Aggregator) Snapshot(snap models.OrderBookSnapshot) error {
	if a.synchronized {
		return models.ErrAlreadySynchronized
	}

	for _, lvl := range snap.Bids {
		a.bids.set(lvl.Price, lvl.Quantity)
	}
	for _, lvl := range snap.Asks {
		a.asks.set(lvl.Price, lvl.Quantity)
	}
	a.lastUpdateID = snap.LastUpdateID

	for _, diff := range a.buffer {
		if diff.FinalUpdateID <= snap.LastUpdateID {
			continue
		}
		a.applyLevels(diff)
		a.lastUpdateID = diff.FinalUpdateID
	}
	a.buffer = nil
	a.synchronized = true
	return nil
}

// Apply consumes one diff. Before synchronization the diff is buffered and
// (nil, nil) is returned: no materialized book yet. After synchronization
// the successor invariant is checked first; on violation the state is left
// untouched and an OutOfSyncError is returned. On success the diff's levels
// are applied and the materialized book is returned.
func (a *Aggregator) Apply(diff models.OrderBookDiff) (*models.OrderBook, error) {
	if !a.synchronized {
		a.buffer = append(a.buffer, diff)
		return nil, nil
	}

	if diff.FirstUpdateID != a.lastUpdateID+1 {
		return nil, &models.OutOfSyncError{
			Market:   a.market,
			Expected: a.lastUpdateID + 1,
			Got:      diff.FirstUpdateID,
		}
	}

	a.applyLevels(diff)
	a.lastUpdateID = diff.FinalUpdateID

	book, err := a.materialize()
	if err != nil {
		return nil, err
	}
	book.Timestamp = diff.EventTime
	return book, nil
}

// Book materializes the current state without mutating it.
func (a *Aggregator) Book() (*models.OrderBook, error) {
	if !a.synchronized {
		return nil, models.ErrNotSynchronized
	}
	return a.materialize()
}

func (a *Aggregator) applyLevels(diff models.OrderBookDiff) {
	for _, lvl := range diff.Bids {
		a.bids.set(lvl.Price, lvl.Quantity)
	}
	for _, lvl := range diff.Asks {
		a.asks.set(lvl.Price, lvl.Quantity)
	}
}

func (a *Aggregator) materialize() (*models.OrderBook, error) {
	if a.bids.len() == 0 {
		return nil, &models.InvalidOrderBookError{Reason: "no bids", Market: a.market}
	}
	if a.asks.len() == 0 {
		return nil, &models.InvalidOrderBookError{Reason: "no asks", Market: a.market}
	}

	max := 1
	if a.mode == FullDepth {
		max = 0
	}
	return &models.OrderBook{
		Market:       a.market,
		Bids:         a.bids.levels(max),
		Asks:         a.asks.levels(max),
		LastUpdateID: a.lastUpdateID,
	}, nil
}
