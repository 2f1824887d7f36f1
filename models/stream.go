package models

// ItemKind tags the variant carried by a stream Item.
type ItemKind int

const (
	// ItemOrderBook carries either a materialized book or an order-book
	// error. Errors travel the stream as values so that one bad message
	// cannot terminate the pipeline.
	ItemOrderBook ItemKind = iota
	// ItemDiff carries a raw incremental update that still has to go
	// through the synchronizer. Consumers never see this kind; it exists
	// between the parser and the feed.
	ItemDiff
	// ItemSubscribed acknowledges a subscribe request.
	ItemSubscribed
	// ItemTrade carries a public trade.
	ItemTrade
	// ItemUnknown carries a message the parser did not recognize.
	ItemUnknown
)

// Trade is a single public trade event.
type Trade struct {
	Market    Market
	Price     float64
	Quantity  float64
	Timestamp int64
	IsBuyer   bool // true when the buyer was the taker
}

// Item is one element of the merged event stream. Exactly the fields
// relevant for Kind are set.
type Item struct {
	Kind   ItemKind
	Market Market

	// ItemOrderBook: one of Book or Err.
	Book *OrderBook
	Err  error

	// ItemDiff
	Diff *OrderBookDiff

	// ItemSubscribed
	SubscriptionID int64

	// ItemTrade
	Trade *Trade

	// ItemUnknown
	Raw []byte
}

// BookItem builds an order-book item carrying a materialized book.
func BookItem(book *OrderBook) Item {
	return Item{Kind: ItemOrderBook, Market: book.Market, Book: book}
}

// BookErrItem builds an order-book item carrying an error value.
func BookErrItem(market Market, err error) Item {
	return Item{Kind: ItemOrderBook, Market: market, Err: err}
}
