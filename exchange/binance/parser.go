package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"bookflow/models"
	"bookflow/symbols"
)

// wsMessage is the union of every frame shape the depth and trade streams
// deliver. Subscribe acknowledgements carry only id and result.
type wsMessage struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`

	// depthUpdate
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`

	// trade
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`

	// subscribe acknowledgement
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// Channels maps exchange symbols to their diff depth stream names.
func (c *Client) Channels(syms []string) []string {
	channels := make([]string, 0, len(syms))
	for _, s := range syms {
		channels = append(channels, strings.ToLower(s)+"@depth@100ms")
	}
	return channels
}

// Parse converts one raw websocket frame into a stream item. Frames for
// symbols the registry does not know, and frames with unparseable level
// data, come back as order-book error items so consumers see the problem
// instead of a silent gap. A frame that is valid JSON but none of the known
// shapes is passed through as an unknown item.
func (c *Client) Parse(data []byte, reg *symbols.Registry) (*models.Item, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if msg.ID != nil {
		return &models.Item{Kind: models.ItemSubscribed, SubscriptionID: *msg.ID}, nil
	}

	switch msg.Event {
	case "depthUpdate":
		market, ok := reg.MarketFor(msg.Symbol)
		if !ok {
			item := models.BookErrItem(models.Market{}, &models.InvalidOrderBookError{
				Reason: fmt.Sprintf("unknown symbol %q", msg.Symbol),
			})
			return &item, nil
		}

		bids, err := parseLevels(msg.Bids)
		if err != nil {
			item := models.BookErrItem(market, &models.InvalidOrderBookError{
				Reason: fmt.Sprintf("bid level: %v", err),
				Market: market,
			})
			return &item, nil
		}
		asks, err := parseLevels(msg.Asks)
		if err != nil {
			item := models.BookErrItem(market, &models.InvalidOrderBookError{
				Reason: fmt.Sprintf("ask level: %v", err),
				Market: market,
			})
			return &item, nil
		}

		return &models.Item{
			Kind:   models.ItemDiff,
			Market: market,
			Diff: &models.OrderBookDiff{
				FirstUpdateID: msg.FirstUpdateID,
				FinalUpdateID: msg.FinalUpdateID,
				Bids:          bids,
				Asks:          asks,
				EventTime:     msg.EventTime,
			},
		}, nil

	case "trade":
		market, ok := reg.MarketFor(msg.Symbol)
		if !ok {
			return &models.Item{Kind: models.ItemUnknown, Raw: data}, nil
		}
		price, err := strconv.ParseFloat(msg.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("trade price %q: %w", msg.Price, err)
		}
		qty, err := strconv.ParseFloat(msg.Quantity, 64)
		if err != nil {
			return nil, fmt.Errorf("trade quantity %q: %w", msg.Quantity, err)
		}
		return &models.Item{
			Kind:   models.ItemTrade,
			Market: market,
			Trade: &models.Trade{
				Market:    market,
				Price:     price,
				Quantity:  qty,
				Timestamp: msg.TradeTime,
				IsBuyer:   !msg.IsBuyerMaker,
			},
		}, nil

	default:
		return &models.Item{Kind: models.ItemUnknown, Raw: data}, nil
	}
}

func parseLevels(raw [][2]string) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		level, err := parseLevel(entry[0], entry[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func parseLevel(price, qty string) (models.PriceLevel, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return models.PriceLevel{}, fmt.Errorf("price %q: %w", price, err)
	}
	q, err := strconv.ParseFloat(qty, 64)
	if err != nil {
		return models.PriceLevel{}, fmt.Errorf("quantity %q: %w", qty, err)
	}
	return models.PriceLevel{Price: p, Quantity: q}, nil
}
