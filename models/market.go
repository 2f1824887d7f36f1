package models

import "fmt"

// MarketKind identifies the instrument class of a market.
type MarketKind string

const (
	Spot      MarketKind = "spot"
	Margin    MarketKind = "margin"
	Perpetual MarketKind = "perpetual"
	Future    MarketKind = "future"
	Option    MarketKind = "option"
)

// Market is the unified identity of a tradable instrument. Equality covers
// exactly these fields, so the zero-cost struct comparison makes Market
// usable as a map key throughout the core.
type Market struct {
	Base   string
	Quote  string
	Kind   MarketKind
	Expiry int64 // unix milliseconds, zero for non-expiring instruments
}

// String renders a display form such as "BTC/USDT" or "BTC/USDT:20261225".
// It is derived from the identity fields and never participates in equality.
func (m Market) String() string {
	if m.Expiry != 0 {
		return fmt.Sprintf("%s/%s:%d", m.Base, m.Quote, m.Expiry)
	}
	return fmt.Sprintf("%s/%s", m.Base, m.Quote)
}
