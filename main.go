package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookflow/cache"
	"bookflow/config"
	"bookflow/exchange/binance"
	"bookflow/feed"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/stream"
	"bookflow/symbols"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Bookflow.Name,
		"version": cfg.Bookflow.Version,
	}).Info("starting bookflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.Report.Interval.Duration)
	}

	markets := make([]models.Market, 0, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets = append(markets, m.Market())
	}

	registry := symbols.NewRegistry()
	exchangeClient := binance.NewClient(cfg, registry)
	if err := exchangeClient.LoadMarkets(ctx); err != nil {
		log.WithError(err).Warn("exchange info unavailable, deriving symbols from configuration")
	}
	exchangeClient.EnsureMarkets(markets)

	bookFeed := feed.New(cfg, exchangeClient, exchangeClient, registry)
	if err := bookFeed.Start(ctx, markets); err != nil {
		log.WithError(err).Error("failed to start feed")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if cfg.Cache.Enabled {
		bookCache := cache.NewBookCache(cfg.Cache)
		if err := bookCache.Ping(ctx); err != nil {
			log.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer bookCache.Close()

		cacheSub, err := bookFeed.Subscribe()
		if err != nil {
			log.WithError(err).Error("failed to subscribe cache consumer")
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			bookCache.Run(ctx, cacheSub)
		}()
		log.WithComponent("main").Info("redis cache consumer started")
	}

	monitorSub, err := bookFeed.Subscribe()
	if err != nil {
		log.WithError(err).Error("failed to subscribe monitor consumer")
		os.Exit(1)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runMonitor(ctx, log, monitorSub)
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	bookFeed.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("bookflow stopped")
}

// runMonitor consumes the merged stream and logs book state transitions.
// An out-of-sync item means the session must be restarted to resynchronize;
// the monitor surfaces it loudly instead of acting on it.
func runMonitor(ctx context.Context, log *logger.Log, sub *stream.Subscription) {
	defer sub.Close()
	l := log.WithComponent("monitor")

	for {
		item, err := sub.Recv(ctx)
		if err != nil {
			var overflow *models.OverflowError
			if errors.As(err, &overflow) {
				logger.IncrementOverflow()
				l.WithFields(logger.Fields{"missed": overflow.Missed}).Warn("monitor fell behind")
				continue
			}
			if errors.Is(err, models.ErrDisconnected) || ctx.Err() != nil {
				l.Info("monitor stopped")
				return
			}
			l.WithError(err).Warn("monitor receive failed")
			return
		}

		switch item.Kind {
		case models.ItemOrderBook:
			if item.Err != nil {
				var oos *models.OutOfSyncError
				if errors.As(item.Err, &oos) {
					l.WithFields(logger.Fields{
						"market":   item.Market.String(),
						"expected": oos.Expected,
						"got":      oos.Got,
					}).Warn("order book out of sync, session restart required")
					continue
				}
				l.WithError(item.Err).WithFields(logger.Fields{
					"market": item.Market.String(),
				}).Warn("order book error")
				continue
			}
			bid, _ := item.Book.BestBid()
			ask, _ := item.Book.BestAsk()
			l.WithFields(logger.Fields{
				"market":         item.Book.Market.String(),
				"best_bid":       bid.Price,
				"best_ask":       ask.Price,
				"last_update_id": item.Book.LastUpdateID,
			}).Debug("book updated")
		case models.ItemSubscribed:
			l.WithFields(logger.Fields{"id": item.SubscriptionID}).Info("subscription acknowledged")
		case models.ItemTrade:
			l.WithFields(logger.Fields{
				"market":   item.Trade.Market.String(),
				"price":    item.Trade.Price,
				"quantity": item.Trade.Quantity,
			}).Debug("trade")
		}
	}
}
