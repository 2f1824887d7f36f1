package models

// PriceLevel is one (price, quantity) pair of an order book side. A zero
// quantity is a deletion instruction: the level at that price must be
// removed from the book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookDiff is one incremental order-book update covering the inclusive
// exchange sequence range FirstUpdateID..FinalUpdateID.
type OrderBookDiff struct {
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []PriceLevel
	Asks          []PriceLevel
	EventTime     int64 // unix milliseconds as reported by the exchange
}

// OrderBookSnapshot is a full-depth book anchored to a single update id,
// fetched over REST out of band from the diff stream.
type OrderBookSnapshot struct {
	Market       Market
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// OrderBook is a materialized, consistent view of a market's book. Bids are
// ordered descending by price, asks ascending. Depending on the aggregator
// mode it holds either the top of book or full depth.
type OrderBook struct {
	Market       Market
	Bids         []PriceLevel
	Asks         []PriceLevel
	LastUpdateID int64
	Timestamp    int64
}

// BestBid returns the highest bid, if any.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}
