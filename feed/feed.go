// Package feed composes the core pipeline: transport connections feed an
// exchange-specific parser, order-book diffs run through the synchronizer,
// and every resulting item is broadcast to subscribers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"bookflow/book"
	"bookflow/config"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/stream"
	"bookflow/symbols"
)

// Parser turns one raw transport frame into a typed stream item. A nil item
// with a nil error means the frame carried nothing for consumers (pings,
// pongs, keep-alives). Implementations must not panic on malformed input;
// level-data problems are expressed as order-book error items.
type Parser interface {
	Parse(data []byte, reg *symbols.Registry) (*models.Item, error)
}

// Protocol is the capability the feed needs from an exchange layer: frame
// parsing plus the exchange's channel naming for subscribe requests.
type Protocol interface {
	Parser
	Channels(symbols []string) []string
}

// SnapshotFetcher retrieves a full-depth REST snapshot for one market, out
// of band from the diff stream.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, market models.Market) (models.OrderBookSnapshot, error)
}

// subscribeRequest is the wire shape of a stream subscription.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Feed owns the transport connections for one exchange session. Exchanges
// cap subscriptions per connection, so the configured market set is chunked
// across as many sockets as needed; their frames are merged into one logical
// stream, parsed, routed through the book synchronizer and broadcast.
//
// The feed never resynchronizes on its own. A sequencing violation is
// published as an error item and it is the caller's job to Stop, Start and
// re-subscribe: only the caller knows the subscription parameters.
type Feed struct {
	cfg      *config.Config
	protocol Protocol
	fetcher  SnapshotFetcher
	registry *symbols.Registry

	books *book.Synchronizer
	bc    *stream.Broadcaster

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stopped bool
	conns   []*websocket.Conn
	log     *logger.Log
}

func New(cfg *config.Config, protocol Protocol, fetcher SnapshotFetcher, registry *symbols.Registry) *Feed {
	mode := book.TopOfBook
	if cfg.Feed.Depth == "full" {
		mode = book.FullDepth
	}
	return &Feed{
		cfg:      cfg,
		protocol: protocol,
		fetcher:  fetcher,
		registry: registry,
		books:    book.NewSynchronizer(mode),
		bc:       stream.NewBroadcaster(cfg.Feed.BroadcastCapacity),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start subscribes to the given markets and runs the pipeline until Stop.
// Subscribe-then-fetch: the websocket subscriptions go out first, and only
// then are REST snapshots fetched, so the first diffs can never be missed;
// the aggregators buffer diffs until their snapshot lands.
func (f *Feed) Start(ctx context.Context, markets []models.Market) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("feed already running")
	}
	if f.stopped {
		// Re-arm after a previous session: the diff sequence space starts
		// over, so every aggregator and the closed broadcaster go with it.
		f.books.Reset()
		f.bc = stream.NewBroadcaster(f.cfg.Feed.BroadcastCapacity)
		f.stopped = false
	}
	f.running = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"operation": "start"})

	f.books.Init(markets)

	symbolIDs := make([]string, 0, len(markets))
	for _, market := range markets {
		symbol, ok := f.registry.SymbolFor(market)
		if !ok {
			f.fail()
			return fmt.Errorf("%w: no symbol registered for %s", models.ErrInvalidMarket, market)
		}
		symbolIDs = append(symbolIDs, symbol)
	}

	chunkSize := f.cfg.Feed.MaxStreamsPerConn
	frameChans := make([]<-chan []byte, 0, (len(symbolIDs)+chunkSize-1)/chunkSize)

	for i := 0; i < len(symbolIDs); i += chunkSize {
		end := i + chunkSize
		if end > len(symbolIDs) {
			end = len(symbolIDs)
		}
		chunk := symbolIDs[i:end]

		dialer := websocket.Dialer{HandshakeTimeout: f.cfg.Feed.HandshakeTimeout.Duration}
		conn, _, err := dialer.DialContext(f.ctx, f.cfg.Feed.Endpoint, nil)
		if err != nil {
			f.fail()
			return fmt.Errorf("dial %s: %w", f.cfg.Feed.Endpoint, err)
		}

		sub := subscribeRequest{
			Method: "SUBSCRIBE",
			Params: f.protocol.Channels(chunk),
			ID:     int64(len(f.conns) + 1),
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			f.fail()
			return fmt.Errorf("subscribe: %w", err)
		}

		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()

		frames := make(chan []byte, f.cfg.Feed.FrameBuffer)
		frameChans = append(frameChans, frames)
		f.wg.Add(1)
		go f.readLoop(conn, frames, len(chunk))

		log.WithFields(logger.Fields{
			"connection": len(f.conns),
			"streams":    len(chunk),
		}).Info("transport connection subscribed")
	}

	merged := stream.MergeFrames(f.ctx, f.cfg.Feed.FrameBuffer, frameChans...)
	f.wg.Add(1)
	go f.pump(merged)

	f.wg.Add(1)
	go f.anchor(markets)

	log.WithFields(logger.Fields{
		"markets":     len(markets),
		"connections": len(f.conns),
	}).Info("feed started")
	return nil
}

// Stop tears the pipeline down: transport connections close, workers drain
// and the broadcaster closes so subscribers see ErrDisconnected after their
// remaining items.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.stopped = true
	f.mu.Unlock()

	f.log.WithComponent("feed").Info("stopping feed")
	f.teardown()
	f.wg.Wait()
	f.bc.Close()
	f.log.WithComponent("feed").Info("feed stopped")
}

// fail unwinds a partially started feed so a later Start can retry.
func (f *Feed) fail() {
	f.teardown()
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *Feed) teardown() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	for _, conn := range f.conns {
		conn.Close()
	}
	f.conns = nil
	f.mu.Unlock()
}

// Subscribe returns an independent cursor over the merged event stream.
func (f *Feed) Subscribe() (*stream.Subscription, error) {
	f.mu.RLock()
	running := f.running
	f.mu.RUnlock()
	if !running {
		return nil, models.ErrNotConnected
	}
	return f.bc.Subscribe(), nil
}

// Book returns the current materialized book for a market.
func (f *Feed) Book(market models.Market) (*models.OrderBook, error) {
	return f.books.Get(market)
}

// Books exposes the synchronizer, mainly for consumers that want
// synchronization state.
func (f *Feed) Books() *book.Synchronizer {
	return f.books
}

func (f *Feed) readLoop(conn *websocket.Conn, frames chan<- []byte, streams int) {
	defer f.wg.Done()
	defer close(frames)

	log := f.log.WithComponent("feed").WithFields(logger.Fields{
		"worker":  "read_loop",
		"streams": streams,
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("websocket read error, connection lost")
			logger.IncrementRetryCount()
			f.bc.Publish(models.BookErrItem(models.Market{}, models.ErrDisconnected))
			return
		}

		select {
		case frames <- data:
		case <-f.ctx.Done():
			return
		}
	}
}

// pump drains the merged frame stream, parses and routes.
func (f *Feed) pump(merged <-chan []byte) {
	defer f.wg.Done()
	for data := range merged {
		f.dispatch(data)
	}
}

func (f *Feed) dispatch(data []byte) {
	item, err := f.protocol.Parse(data, f.registry)
	if err != nil {
		// One malformed frame must not kill the stream; consumers see the
		// failure as an error item.
		f.log.WithComponent("feed").WithError(err).Debug("failed to parse frame")
		f.bc.Publish(models.BookErrItem(models.Market{}, &models.InvalidOrderBookError{Reason: err.Error()}))
		return
	}
	if item == nil {
		return
	}

	switch item.Kind {
	case models.ItemDiff:
		logger.IncrementDiffRead(len(data))
		ob, err := f.books.Apply(item.Market, *item.Diff)
		switch {
		case err != nil:
			var oos *models.OutOfSyncError
			if errors.As(err, &oos) {
				logger.IncrementOutOfSync()
				f.log.WithComponent("feed").WithFields(logger.Fields{
					"market":   item.Market.String(),
					"expected": oos.Expected,
					"got":      oos.Got,
				}).Warn("order book out of sync")
			}
			f.bc.Publish(models.BookErrItem(item.Market, err))
		case ob != nil:
			f.bc.Publish(models.BookItem(ob))
		default:
			// Still buffering until the snapshot arrives.
		}
	default:
		f.bc.Publish(*item)
	}
}

// anchor fetches one REST snapshot per market and anchors its aggregator.
// Fetch failures are published, not fatal: the affected market simply keeps
// buffering and the caller can restart the feed.
func (f *Feed) anchor(markets []models.Market) {
	defer f.wg.Done()

	log := f.log.WithComponent("feed_snapshot")

	for _, market := range markets {
		if f.ctx.Err() != nil {
			return
		}

		snap, err := f.fetcher.Fetch(f.ctx, market)
		if err != nil {
			if f.ctx.Err() != nil {
				return
			}
			log.WithError(err).WithFields(logger.Fields{"market": market.String()}).Warn("failed to fetch snapshot")
			f.bc.Publish(models.BookErrItem(market, err))
			continue
		}
		logger.IncrementSnapshotRead(len(snap.Bids) + len(snap.Asks))

		if err := f.books.Snapshot(market, snap); err != nil {
			if errors.Is(err, models.ErrAlreadySynchronized) {
				log.WithFields(logger.Fields{"market": market.String()}).Debug("snapshot already applied")
				continue
			}
			log.WithError(err).WithFields(logger.Fields{"market": market.String()}).Warn("failed to apply snapshot")
			f.bc.Publish(models.BookErrItem(market, err))
			continue
		}

		if ob, err := f.books.Get(market); err == nil {
			f.bc.Publish(models.BookItem(ob))
		}

		log.WithFields(logger.Fields{
			"market":         market.String(),
			"last_update_id": snap.LastUpdateID,
		}).Info("order book anchored")
	}
}
