package binance

import (
	"context"
	"fmt"
	"time"

	"bookflow/logger"
	"bookflow/models"
)

// Fetch retrieves a full-depth REST snapshot for one market. Calls go
// through a shared rate limiter so a large market set cannot burn the
// exchange request weight budget.
func (c *Client) Fetch(ctx context.Context, market models.Market) (models.OrderBookSnapshot, error) {
	symbol, ok := c.registry.SymbolFor(market)
	if !ok {
		return models.OrderBookSnapshot{}, fmt.Errorf("%w: %s", models.ErrInvalidMarket, market)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.OrderBookSnapshot{}, err
	}

	log := c.log.WithComponent("binance_snapshot").WithFields(logger.Fields{"symbol": symbol})

	start := time.Now()
	res, err := c.api.NewDepthService().
		Symbol(symbol).
		Limit(c.limit).
		Do(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch depth snapshot")
		return models.OrderBookSnapshot{}, fmt.Errorf("depth snapshot %s: %w", symbol, err)
	}
	logger.LogPerformanceEntry(log, "binance_snapshot", "api_request", time.Since(start), logger.Fields{
		"symbol": symbol,
	})

	bids := make([]models.PriceLevel, 0, len(res.Bids))
	for _, b := range res.Bids {
		level, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return models.OrderBookSnapshot{}, &models.InvalidOrderBookError{
				Reason: fmt.Sprintf("snapshot bid: %v", err),
				Market: market,
			}
		}
		bids = append(bids, level)
	}
	asks := make([]models.PriceLevel, 0, len(res.Asks))
	for _, a := range res.Asks {
		level, err := parseLevel(a.Price, a.Quantity)
		if err != nil {
			return models.OrderBookSnapshot{}, &models.InvalidOrderBookError{
				Reason: fmt.Sprintf("snapshot ask: %v", err),
				Market: market,
			}
		}
		asks = append(asks, level)
	}

	return models.OrderBookSnapshot{
		Market:       market,
		LastUpdateID: res.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}
