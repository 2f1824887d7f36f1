package book

import (
	"sync"

	"bookflow/models"
)

// marketBook pairs one aggregator with its own lock so independent markets
// update fully in parallel.
type marketBook struct {
	mu  sync.Mutex
	agg *Aggregator
}

// Synchronizer is the registry of per-market aggregators and the public
// surface of the reconstruction engine. The top-level map is read-mostly
// (the market set rarely changes after Init); all write traffic happens
// inside each market's own mutex.
type Synchronizer struct {
	mu    sync.RWMutex
	mode  Mode
	books map[models.Market]*marketBook
}

func NewSynchronizer(mode Mode) *Synchronizer {
	return &Synchronizer{
		mode:  mode,
		books: make(map[models.Market]*marketBook),
	}
}

// Init registers one unsynchronized aggregator per market. It is idempotent
// per market: a market that already has an aggregator keeps it, so calling
// Init twice never resets synchronized state.
func (s *Synchronizer) Init(markets []models.Market) {
	s.mu.Lock()
	for _, market := range markets {
		if _, ok := s.books[market]; ok {
			continue
		}
		s.books[market] = &marketBook{agg: NewAggregator(market, s.mode)}
	}
	s.mu.Unlock()
}

func (s *Synchronizer) lookup(market models.Market) (*marketBook, error) {
	s.mu.RLock()
	mb, ok := s.books[market]
	s.mu.RUnlock()
	if !ok {
		return nil, models.ErrInvalidMarket
	}
	return mb, nil
}

// Snapshot anchors the market's aggregator with a REST snapshot.
func (s *Synchronizer) Snapshot(market models.Market, snap models.OrderBookSnapshot) error {
	mb, err := s.lookup(market)
	if err != nil {
		return err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.agg.Snapshot(snap)
}

// Apply routes one diff to the market's aggregator. (nil, nil) means the
// aggregator is still buffering; a non-nil book is the materialized state
// after the diff.
func (s *Synchronizer) Apply(market models.Market, diff models.OrderBookDiff) (*models.OrderBook, error) {
	mb, err := s.lookup(market)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.agg.Apply(diff)
}

// Get returns the market's current materialized book without mutation.
func (s *Synchronizer) Get(market models.Market) (*models.OrderBook, error) {
	mb, err := s.lookup(market)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.agg.Book()
}

// Synchronized reports whether the market's aggregator is anchored.
func (s *Synchronizer) Synchronized(market models.Market) (bool, error) {
	mb, err := s.lookup(market)
	if err != nil {
		return false, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.agg.Synchronized(), nil
}

// Drop deregisters a market and destroys its aggregator state.
func (s *Synchronizer) Drop(market models.Market) {
	s.mu.Lock()
	delete(s.books, market)
	s.mu.Unlock()
}

// Reset destroys every aggregator. Used on reconnect, when the whole
// sequence space starts over.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.books = make(map[models.Market]*marketBook)
	s.mu.Unlock()
}
