// Package symbols maintains the bidirectional mapping between unified
// markets and exchange-native symbol ids.
package symbols

import (
	"sync"

	"bookflow/models"
)

// Registry maps unified markets to exchange symbol ids and back. Reads are
// frequent (every parsed message resolves a symbol); rebuilds happen only on
// a full market reload, so a single RWMutex is enough.
type Registry struct {
	mu             sync.RWMutex
	marketToSymbol map[models.Market]string
	symbolToMarket map[string]models.Market
}

func NewRegistry() *Registry {
	return &Registry{
		marketToSymbol: make(map[models.Market]string),
		symbolToMarket: make(map[string]models.Market),
	}
}

// Register inserts both directions of the mapping, overwriting any previous
// entry for either key.
func (r *Registry) Register(market models.Market, symbol string) {
	r.mu.Lock()
	r.marketToSymbol[market] = symbol
	r.symbolToMarket[symbol] = market
	r.mu.Unlock()
}

// SymbolFor resolves the exchange symbol id for a market.
func (r *Registry) SymbolFor(market models.Market) (string, bool) {
	r.mu.RLock()
	symbol, ok := r.marketToSymbol[market]
	r.mu.RUnlock()
	return symbol, ok
}

// MarketFor resolves the market for an exchange symbol id.
func (r *Registry) MarketFor(symbol string) (models.Market, bool) {
	r.mu.RLock()
	market, ok := r.symbolToMarket[symbol]
	r.mu.RUnlock()
	return market, ok
}

// Reset clears both directions atomically. It runs before a full market
// reload so a stale symbol id can never resolve to a market instance from a
// previous session.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.marketToSymbol = make(map[models.Market]string)
	r.symbolToMarket = make(map[string]models.Market)
	r.mu.Unlock()
}

// Len reports the number of registered markets.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.marketToSymbol)
	r.mu.RUnlock()
	return n
}
