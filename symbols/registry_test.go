package symbols

import (
	"fmt"
	"sync"
	"testing"

	"bookflow/models"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	market := models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}
	reg.Register(market, "BTCUSDT")

	symbol, ok := reg.SymbolFor(market)
	if !ok || symbol != "BTCUSDT" {
		t.Fatalf("SymbolFor: got %q ok=%v", symbol, ok)
	}
	got, ok := reg.MarketFor("BTCUSDT")
	if !ok || got != market {
		t.Fatalf("MarketFor: got %+v ok=%v", got, ok)
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.MarketFor("NOPE"); ok {
		t.Fatalf("unknown symbol resolved")
	}
	if _, ok := reg.SymbolFor(models.Market{Base: "X", Quote: "Y", Kind: models.Spot}); ok {
		t.Fatalf("unknown market resolved")
	}
}

func TestRegistryKindDisambiguates(t *testing.T) {
	reg := NewRegistry()
	spot := models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}
	perp := models.Market{Base: "BTC", Quote: "USDT", Kind: models.Perpetual}
	reg.Register(spot, "BTCUSDT")
	reg.Register(perp, "BTCUSDT_PERP")

	if s, _ := reg.SymbolFor(spot); s != "BTCUSDT" {
		t.Errorf("spot symbol: %s", s)
	}
	if s, _ := reg.SymbolFor(perp); s != "BTCUSDT_PERP" {
		t.Errorf("perp symbol: %s", s)
	}
}

func TestRegistryReregister(t *testing.T) {
	reg := NewRegistry()
	market := models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}
	reg.Register(market, "BTCUSDT")
	reg.Register(market, "XBTUSDT")

	// The newest mapping wins in both directions.
	if s, _ := reg.SymbolFor(market); s != "XBTUSDT" {
		t.Errorf("expected remapped symbol, got %s", s)
	}
	if m, ok := reg.MarketFor("XBTUSDT"); !ok || m != market {
		t.Errorf("new symbol does not resolve: %+v ok=%v", m, ok)
	}
}

func TestRegistryReset(t *testing.T) {
	reg := NewRegistry()
	market := models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}
	reg.Register(market, "BTCUSDT")

	reg.Reset()
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry after reset, got %d", reg.Len())
	}
	if _, ok := reg.MarketFor("BTCUSDT"); ok {
		t.Fatalf("stale mapping survived reset")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				symbol := fmt.Sprintf("SYM%d", i)
				market := models.Market{Base: fmt.Sprintf("B%d", i), Quote: "USDT", Kind: models.Spot}
				reg.Register(market, symbol)
				reg.MarketFor(symbol)
				reg.SymbolFor(market)
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 8 {
		t.Fatalf("expected 8 mappings, got %d", reg.Len())
	}
}
