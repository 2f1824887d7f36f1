// Package cache mirrors materialized order books into Redis so other
// processes can read current books and best bid/offer without joining the
// stream.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"bookflow/config"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/stream"
)

// ErrNotFound is returned when no book data exists for a market.
var ErrNotFound = errors.New("cache: not found")

// BookCache stores order books in Redis.
//
// Key schema:
//
//	book:{market}:bids  - sorted set of bid prices (score = price)
//	book:{market}:asks  - sorted set of ask prices (score = price)
//	book:{market}:size  - hash mapping "b:{price}" / "a:{price}" -> quantity
//	book:{market}:bbo   - hash with "bid", "bid_qty", "ask", "ask_qty"
//	book:{market}:meta  - hash with "last_update_id"
type BookCache struct {
	rdb *redis.Client
	ttl config.CacheConfig
	log *logger.Log
}

func NewBookCache(cfg config.CacheConfig) *BookCache {
	return &BookCache{
		rdb: redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB}),
		ttl: cfg,
		log: logger.GetLogger(),
	}
}

// Ping verifies the Redis connection.
func (bc *BookCache) Ping(ctx context.Context) error {
	return bc.rdb.Ping(ctx).Err()
}

func (bc *BookCache) Close() error {
	return bc.rdb.Close()
}

func bidsKey(m models.Market) string { return "book:" + m.String() + ":bids" }
func asksKey(m models.Market) string { return "book:" + m.String() + ":asks" }
func sizeKey(m models.Market) string { return "book:" + m.String() + ":size" }
func bboKey(m models.Market) string  { return "book:" + m.String() + ":bbo" }
func metaKey(m models.Market) string { return "book:" + m.String() + ":meta" }

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// SetBook atomically replaces the cached book for a market. Existing keys
// are cleared first so removed levels cannot survive a replacement.
func (bc *BookCache) SetBook(ctx context.Context, book *models.OrderBook) error {
	m := book.Market
	pipe := bc.rdb.TxPipeline()

	pipe.Del(ctx, bidsKey(m), asksKey(m), sizeKey(m), bboKey(m), metaKey(m))

	for _, lvl := range book.Bids {
		priceStr := fmtFloat(lvl.Price)
		pipe.ZAdd(ctx, bidsKey(m), redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, sizeKey(m), "b:"+priceStr, fmtFloat(lvl.Quantity))
	}
	for _, lvl := range book.Asks {
		priceStr := fmtFloat(lvl.Price)
		pipe.ZAdd(ctx, asksKey(m), redis.Z{Score: lvl.Price, Member: priceStr})
		pipe.HSet(ctx, sizeKey(m), "a:"+priceStr, fmtFloat(lvl.Quantity))
	}

	if bid, ok := book.BestBid(); ok {
		pipe.HSet(ctx, bboKey(m), "bid", fmtFloat(bid.Price), "bid_qty", fmtFloat(bid.Quantity))
	}
	if ask, ok := book.BestAsk(); ok {
		pipe.HSet(ctx, bboKey(m), "ask", fmtFloat(ask.Price), "ask_qty", fmtFloat(ask.Quantity))
	}
	pipe.HSet(ctx, metaKey(m), "last_update_id", strconv.FormatInt(book.LastUpdateID, 10))

	if bc.ttl.TTL.Duration > 0 {
		for _, key := range []string{bidsKey(m), asksKey(m), sizeKey(m), bboKey(m), metaKey(m)} {
			pipe.Expire(ctx, key, bc.ttl.TTL.Duration)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", m, err)
	}
	return nil
}

// GetBook reconstructs the cached book for a market. It returns ErrNotFound
// when nothing has been cached yet.
func (bc *BookCache) GetBook(ctx context.Context, market models.Market) (*models.OrderBook, error) {
	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bidsKey(market), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, asksKey(market), 0, -1)
	sizeCmd := pipe.HGetAll(ctx, sizeKey(market))
	metaCmd := pipe.HGetAll(ctx, metaKey(market))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get book %s: %w", market, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return nil, ErrNotFound
	}

	book := &models.OrderBook{Market: market}
	if idStr, ok := meta["last_update_id"]; ok {
		book.LastUpdateID, _ = strconv.ParseInt(idStr, 10, 64)
	}

	sizes, _ := sizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	book.Bids = make([]models.PriceLevel, 0, len(bidsZ))
	for _, z := range bidsZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		qty, _ := strconv.ParseFloat(sizes["b:"+priceStr], 64)
		book.Bids = append(book.Bids, models.PriceLevel{Price: z.Score, Quantity: qty})
	}
	asksZ, _ := asksCmd.Result()
	book.Asks = make([]models.PriceLevel, 0, len(asksZ))
	for _, z := range asksZ {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		qty, _ := strconv.ParseFloat(sizes["a:"+priceStr], 64)
		book.Asks = append(book.Asks, models.PriceLevel{Price: z.Score, Quantity: qty})
	}

	return book, nil
}

// BBO retrieves the cached best bid and ask prices.
func (bc *BookCache) BBO(ctx context.Context, market models.Market) (bestBid, bestAsk float64, err error) {
	vals, err := bc.rdb.HGetAll(ctx, bboKey(market)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", market, err)
	}
	if len(vals) == 0 {
		return 0, 0, ErrNotFound
	}
	if s, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(s, 64)
	}
	return bestBid, bestAsk, nil
}

// Run consumes a stream subscription and mirrors every materialized book
// into Redis until the stream closes or the context is cancelled. Overflow
// signals are counted and skipped; the next book item resynchronizes the
// cache anyway because SetBook replaces the whole book.
func (bc *BookCache) Run(ctx context.Context, sub *stream.Subscription) {
	log := bc.log.WithComponent("book_cache")
	defer sub.Close()

	for {
		item, err := sub.Recv(ctx)
		if err != nil {
			var overflow *models.OverflowError
			if errors.As(err, &overflow) {
				logger.IncrementOverflow()
				log.WithFields(logger.Fields{"missed": overflow.Missed}).Warn("cache consumer overflowed")
				continue
			}
			if errors.Is(err, models.ErrDisconnected) || ctx.Err() != nil {
				log.Info("cache consumer stopped")
				return
			}
			log.WithError(err).Warn("cache consumer receive failed")
			return
		}

		if item.Kind != models.ItemOrderBook || item.Book == nil {
			continue
		}
		if err := bc.SetBook(ctx, item.Book); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"market": item.Book.Market.String(),
			}).Warn("failed to cache book")
		}
	}
}
