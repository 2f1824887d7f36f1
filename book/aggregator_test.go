package book

import (
	"errors"
	"testing"

	"bookflow/models"
)

var testMarket = models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}

func snapshot(lastID int64, bids, asks []models.PriceLevel) models.OrderBookSnapshot {
	return models.OrderBookSnapshot{
		Market:       testMarket,
		LastUpdateID: lastID,
		Bids:         bids,
		Asks:         asks,
	}
}

func diff(first, final int64, bids, asks []models.PriceLevel) models.OrderBookDiff {
	return models.OrderBookDiff{
		FirstUpdateID: first,
		FinalUpdateID: final,
		Bids:          bids,
		Asks:          asks,
	}
}

func level(price, qty float64) models.PriceLevel {
	return models.PriceLevel{Price: price, Quantity: qty}
}

func TestAggregatorSnapshotThenDiff(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)

	err := agg.Snapshot(snapshot(100,
		[]models.PriceLevel{level(99, 1), level(98, 2)},
		[]models.PriceLevel{level(101, 1), level(102, 2)},
	))
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if !agg.Synchronized() {
		t.Fatalf("expected synchronized after snapshot")
	}

	book, err := agg.Apply(diff(101, 105,
		[]models.PriceLevel{level(99.5, 3)},
		nil,
	))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if book == nil {
		t.Fatalf("expected materialized book")
	}
	if book.LastUpdateID != 105 {
		t.Errorf("unexpected last update id: %d", book.LastUpdateID)
	}
	best, _ := book.BestBid()
	if best.Price != 99.5 || best.Quantity != 3 {
		t.Errorf("unexpected best bid: %+v", best)
	}
}

func TestAggregatorBuffersBeforeSnapshot(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)

	// Diffs arrive before the snapshot; ids 10 and 12 straddle the anchor.
	book, err := agg.Apply(diff(9, 10, []models.PriceLevel{level(99, 5)}, nil))
	if err != nil || book != nil {
		t.Fatalf("pre-snapshot Apply should buffer, got book=%v err=%v", book, err)
	}
	book, err = agg.Apply(diff(11, 12, []models.PriceLevel{level(100, 7)}, nil))
	if err != nil || book != nil {
		t.Fatalf("pre-snapshot Apply should buffer, got book=%v err=%v", book, err)
	}

	// Snapshot anchored at 11: the first diff is stale and must be dropped,
	// the second applies on top.
	err = agg.Snapshot(snapshot(11,
		[]models.PriceLevel{level(98, 1)},
		[]models.PriceLevel{level(102, 1)},
	))
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if agg.LastUpdateID() != 12 {
		t.Fatalf("expected drained buffer to advance to 12, got %d", agg.LastUpdateID())
	}

	book, err = agg.Book()
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	best, _ := book.BestBid()
	if best.Price != 100 {
		t.Errorf("stale buffered diff leaked or drain missed: best bid %+v", best)
	}
	for _, b := range book.Bids {
		if b.Price == 99 {
			t.Errorf("stale diff level applied: %+v", b)
		}
	}
}

func TestAggregatorSequenceGap(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	if err := agg.Snapshot(snapshot(50,
		[]models.PriceLevel{level(99, 1)},
		[]models.PriceLevel{level(101, 1)},
	)); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Next diff must start at 51; 52 is a gap.
	book, err := agg.Apply(diff(52, 53, []models.PriceLevel{level(98, 1)}, nil))
	if book != nil {
		t.Fatalf("gap must not produce a book")
	}
	var oos *models.OutOfSyncError
	if !errors.As(err, &oos) {
		t.Fatalf("expected OutOfSyncError, got %v", err)
	}
	if oos.Expected != 51 || oos.Got != 52 {
		t.Errorf("unexpected gap bounds: expected=%d got=%d", oos.Expected, oos.Got)
	}

	// State must be untouched: the correct successor still applies.
	if agg.LastUpdateID() != 50 {
		t.Fatalf("gap mutated state: last id %d", agg.LastUpdateID())
	}
	if _, err := agg.Apply(diff(51, 53, nil, []models.PriceLevel{level(102, 2)})); err != nil {
		t.Fatalf("valid successor rejected after gap: %v", err)
	}
}

func TestAggregatorZeroQuantityDeletes(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	if err := agg.Snapshot(snapshot(1,
		[]models.PriceLevel{level(99, 1), level(98, 2)},
		[]models.PriceLevel{level(101, 1)},
	)); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	book, err := agg.Apply(diff(2, 2, []models.PriceLevel{level(99, 0)}, nil))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(book.Bids) != 1 || book.Bids[0].Price != 98 {
		t.Errorf("deletion did not remove level: %+v", book.Bids)
	}

	// Deleting an absent level is a no-op, not an error.
	if _, err := agg.Apply(diff(3, 3, []models.PriceLevel{level(97.5, 0)}, nil)); err != nil {
		t.Fatalf("absent-level deletion failed: %v", err)
	}
}

func TestAggregatorOrdering(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	if err := agg.Snapshot(snapshot(1,
		[]models.PriceLevel{level(98, 1), level(99.5, 2), level(99, 3)},
		[]models.PriceLevel{level(102, 1), level(100.5, 2), level(101, 3)},
	)); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	book, err := agg.Book()
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	for i := 1; i < len(book.Bids); i++ {
		if book.Bids[i].Price >= book.Bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %+v", book.Bids)
		}
	}
	for i := 1; i < len(book.Asks); i++ {
		if book.Asks[i].Price <= book.Asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %+v", book.Asks)
		}
	}
}

func TestAggregatorTopOfBook(t *testing.T) {
	agg := NewAggregator(testMarket, TopOfBook)
	if err := agg.Snapshot(snapshot(1,
		[]models.PriceLevel{level(99, 1), level(98, 2)},
		[]models.PriceLevel{level(101, 1), level(102, 2)},
	)); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	book, err := agg.Book()
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Fatalf("top-of-book must hold one level per side: %d/%d", len(book.Bids), len(book.Asks))
	}
	if book.Bids[0].Price != 99 || book.Asks[0].Price != 101 {
		t.Errorf("unexpected top of book: %+v / %+v", book.Bids[0], book.Asks[0])
	}
}

func TestAggregatorDoubleSnapshot(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	snap := snapshot(1, []models.PriceLevel{level(99, 1)}, []models.PriceLevel{level(101, 1)})
	if err := agg.Snapshot(snap); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if err := agg.Snapshot(snap); !errors.Is(err, models.ErrAlreadySynchronized) {
		t.Fatalf("expected ErrAlreadySynchronized, got %v", err)
	}
}

func TestAggregatorBookBeforeSnapshot(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	if _, err := agg.Book(); !errors.Is(err, models.ErrNotSynchronized) {
		t.Fatalf("expected ErrNotSynchronized, got %v", err)
	}
}

func TestAggregatorEmptySideInvalid(t *testing.T) {
	agg := NewAggregator(testMarket, FullDepth)
	if err := agg.Snapshot(snapshot(1,
		[]models.PriceLevel{level(99, 1)},
		[]models.PriceLevel{level(101, 1)},
	)); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Delete the only ask; the book becomes unmaterializable.
	book, err := agg.Apply(diff(2, 2, nil, []models.PriceLevel{level(101, 0)}))
	if book != nil {
		t.Fatalf("one-sided book must not materialize")
	}
	var invalid *models.InvalidOrderBookError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidOrderBookError, got %v", err)
	}
}
