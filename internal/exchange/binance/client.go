// Package binance implements a TradeStream over the Binance aggTrade
// websocket feed.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"orderflow/internal/domain/models"
	drepo "orderflow/internal/domain/repository"
	applogger "orderflow/pkg/logger"
)

// Client implements a TradeStream backed by the Binance websocket API.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	conn      *websocket.Conn
	connected bool
}

// New creates a Binance trade stream for the given symbols.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) drepo.TradeStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the websocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.log.Info("binance: connected", applogger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to the aggTrade stream of every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("binance not connected")
	}

	params := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		params = append(params, strings.ToLower(s)+"@aggTrade")
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	c.log.Info("binance: subscribed", applogger.Strings("streams", params))
	return nil
}

// aggTrade is the Binance aggregated trade payload. The "m" flag marks the
// buyer as maker: the resting order was a bid, so the aggressor sold.
type aggTrade struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	IsBuyerMM bool   `json:"m"`
	BestMatch bool   `json:"M"`
}

// Read streams normalized trade events and errors. The read loop exits on the
// first websocket error; the caller decides whether to Reconnect.
func (c *Client) Read(ctx context.Context) (<-chan models.TradeEvent, <-chan error) {
	trades := make(chan models.TradeEvent, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(trades)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("binance conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("binance read: %w", err)
					return
				}

				var t aggTrade
				if err := json.Unmarshal(b, &t); err != nil || t.EventType != "aggTrade" {
					// subscription acks and other control frames
					continue
				}

				price, err := strconv.ParseFloat(t.Price, 64)
				if err != nil {
					continue
				}
				qty, err := strconv.ParseFloat(t.Quantity, 64)
				if err != nil || qty <= 0 {
					continue
				}

				ev := models.TradeEvent{
					Exchange:     "binance",
					Symbol:       t.Symbol,
					IsPassiveBid: t.IsBuyerMM,
					Quantity:     qty,
					Price:        price,
					TimestampMs:  t.TradeTime,
				}
				select {
				case trades <- ev:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return trades, errs
}

// Reconnect closes and reconnects, then resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
