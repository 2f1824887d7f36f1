// Package binance adapts the Binance spot API to the feed's protocol and
// snapshot interfaces: websocket frame parsing, stream channel naming, REST
// depth snapshots and exchange-info driven symbol discovery.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"time"

	spot "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"bookflow/config"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/symbols"
)

type Client struct {
	api      *spot.Client
	registry *symbols.Registry
	limiter  *rate.Limiter
	limit    int
	log      *logger.Log
}

func NewClient(cfg *config.Config, registry *symbols.Registry) *Client {
	api := spot.NewClient("", "")
	api.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	return &Client{
		api:      api,
		registry: registry,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Snapshot.RequestsPerSecond), cfg.Snapshot.Burst),
		limit:    cfg.Snapshot.Limit,
		log:      logger.GetLogger(),
	}
}

// LoadMarkets queries exchange info and fills the registry with every
// actively trading spot symbol. The registry is reset first so a reload
// after a symbol delisting cannot leave a stale mapping behind.
func (c *Client) LoadMarkets(ctx context.Context) error {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange info: %w", err)
	}

	pairs := make(map[models.Market]string, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		market := models.Market{Base: s.BaseAsset, Quote: s.QuoteAsset, Kind: models.Spot}
		pairs[market] = s.Symbol
	}

	c.registry.Reset()
	for market, symbol := range pairs {
		c.registry.Register(market, symbol)
	}

	c.log.WithComponent("binance_client").WithFields(logger.Fields{
		"symbols": len(pairs),
	}).Info("markets loaded from exchange info")
	return nil
}

// EnsureMarkets registers a derived symbol for any configured market the
// registry does not know yet. Binance spot symbols are the concatenated
// base and quote assets, so the derivation is safe when exchange info is
// unavailable.
func (c *Client) EnsureMarkets(markets []models.Market) {
	for _, market := range markets {
		if _, ok := c.registry.SymbolFor(market); ok {
			continue
		}
		c.registry.Register(market, market.Base+market.Quote)
	}
}
