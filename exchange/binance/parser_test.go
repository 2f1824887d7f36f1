package binance

import (
	"errors"
	"testing"

	"bookflow/models"
	"bookflow/symbols"
)

func testRegistry() *symbols.Registry {
	reg := symbols.NewRegistry()
	reg.Register(models.Market{Base: "BTC", Quote: "USDT", Kind: models.Spot}, "BTCUSDT")
	return reg
}

func TestParseDepthUpdate(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	frame := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"BTCUSDT","U":157,"u":160,` +
		`"b":[["42000.50","1.5"],["41999.00","0"]],"a":[["42001.00","2.25"]]}`)

	item, err := c.Parse(frame, reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemDiff {
		t.Fatalf("expected diff item, got kind %d", item.Kind)
	}
	if item.Market.Base != "BTC" || item.Market.Quote != "USDT" {
		t.Errorf("unexpected market: %+v", item.Market)
	}
	diff := item.Diff
	if diff.FirstUpdateID != 157 || diff.FinalUpdateID != 160 {
		t.Errorf("unexpected update ids: %d..%d", diff.FirstUpdateID, diff.FinalUpdateID)
	}
	if len(diff.Bids) != 2 || len(diff.Asks) != 1 {
		t.Fatalf("unexpected level counts: %d bids, %d asks", len(diff.Bids), len(diff.Asks))
	}
	if diff.Bids[0].Price != 42000.50 || diff.Bids[0].Quantity != 1.5 {
		t.Errorf("unexpected bid: %+v", diff.Bids[0])
	}
	if diff.Bids[1].Quantity != 0 {
		t.Errorf("expected zero-quantity deletion level, got %+v", diff.Bids[1])
	}
}

func TestParseSubscribeAck(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	item, err := c.Parse([]byte(`{"result":null,"id":7}`), reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemSubscribed {
		t.Fatalf("expected subscribed item, got kind %d", item.Kind)
	}
	if item.SubscriptionID != 7 {
		t.Errorf("unexpected subscription id: %d", item.SubscriptionID)
	}
}

func TestParseTrade(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	frame := []byte(`{"e":"trade","E":1700000000500,"s":"BTCUSDT","p":"42000.10","q":"0.004","T":1700000000499,"m":true}`)
	item, err := c.Parse(frame, reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemTrade {
		t.Fatalf("expected trade item, got kind %d", item.Kind)
	}
	if item.Trade.Price != 42000.10 || item.Trade.Quantity != 0.004 {
		t.Errorf("unexpected trade: %+v", item.Trade)
	}
	if item.Trade.IsBuyer {
		t.Errorf("buyer-maker trade should not be taker buy")
	}
}

func TestParseUnknownSymbol(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	frame := []byte(`{"e":"depthUpdate","E":1,"s":"DOGEUSDT","U":1,"u":2,"b":[],"a":[]}`)
	item, err := c.Parse(frame, reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemOrderBook || item.Err == nil {
		t.Fatalf("expected order-book error item, got %+v", item)
	}
}

func TestParseBadLevel(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	frame := []byte(`{"e":"depthUpdate","E":1,"s":"BTCUSDT","U":1,"u":2,"b":[["oops","1"]],"a":[]}`)
	item, err := c.Parse(frame, reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemOrderBook || item.Err == nil {
		t.Fatalf("expected order-book error item, got %+v", item)
	}
	var invalid *models.InvalidOrderBookError
	if !errors.As(item.Err, &invalid) {
		t.Fatalf("expected InvalidOrderBookError, got %T", item.Err)
	}
}

func TestParseUnknownEvent(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	item, err := c.Parse([]byte(`{"e":"kline","s":"BTCUSDT"}`), reg)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if item.Kind != models.ItemUnknown {
		t.Fatalf("expected unknown item, got kind %d", item.Kind)
	}
}

func TestParseMalformedFrame(t *testing.T) {
	reg := testRegistry()
	c := &Client{registry: reg}

	if _, err := c.Parse([]byte(`{not json`), reg); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestChannels(t *testing.T) {
	c := &Client{}
	got := c.Channels([]string{"BTCUSDT", "ETHUSDT"})
	want := []string{"btcusdt@depth@100ms", "ethusdt@depth@100ms"}
	if len(got) != len(want) {
		t.Fatalf("unexpected channel count: %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("channel %d: got %s want %s", i, got[i], want[i])
		}
	}
}
