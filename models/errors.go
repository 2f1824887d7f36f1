package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMarket is returned for operations on a market that was
	// never registered with the synchronizer.
	ErrInvalidMarket = errors.New("invalid market")

	// ErrAlreadySynchronized is returned when a second snapshot is applied
	// to an aggregator that is already anchored.
	ErrAlreadySynchronized = errors.New("order book already synchronized")

	// ErrNotSynchronized is returned when a book is requested before the
	// anchoring snapshot arrived.
	ErrNotSynchronized = errors.New("order book not synchronized")

	// ErrNotConnected is returned for stream operations before Start.
	ErrNotConnected = errors.New("feed not connected")

	// ErrDisconnected is returned by a receive on a closed and drained
	// stream cursor.
	ErrDisconnected = errors.New("stream disconnected")
)

// OutOfSyncError reports a violation of the successor invariant: once
// synchronized, every diff's FirstUpdateID must equal the last applied
// update id plus one. It is the caller's signal to resubscribe and
// re-snapshot; the aggregator does not self-heal.
type OutOfSyncError struct {
	Market   Market
	Expected int64
	Got      int64
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("order book out of sync for %s: expected first update id %d, got %d",
		e.Market, e.Expected, e.Got)
}

// InvalidOrderBookError reports malformed order-book data, such as an
// unparsable price or a symbol that resolves to no market.
type InvalidOrderBookError struct {
	Reason string
	Market Market // zero value when the market could not be determined
}

func (e *InvalidOrderBookError) Error() string {
	if e.Market == (Market{}) {
		return fmt.Sprintf("invalid order book: %s", e.Reason)
	}
	return fmt.Sprintf("invalid order book for %s: %s", e.Market, e.Reason)
}

// OverflowError tells a slow consumer how many items it missed after
// falling behind the broadcast ring. The next receive resumes at the oldest
// retained item.
type OverflowError struct {
	Missed int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("stream overflowed: %d items dropped", e.Missed)
}
