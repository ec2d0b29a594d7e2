// Package coinbasews is the websocket transport collaborator: it owns the
// TLS connection to the exchange feed, performs the level2 subscription
// handshake, and hands every raw payload to a callback in arrival order.
package coinbasews

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultURL is the production feed endpoint.
const DefaultURL = "wss://ws-feed.gdax.com"

type subscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Client subscribes one product's level2 channel. Run blocks in the read
// loop until the connection dies or Stop is called.
type Client struct {
	url     string
	product string
	log     zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
}

func New(url, product string, log zerolog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{url: url, product: product, log: log}
}

// Run dials the feed, subscribes, and invokes handle with every inbound
// payload until Stop closes the connection. The callback must not block
// for long: it runs on the single receive goroutine.
func (c *Client) Run(ctx context.Context, handle func([]byte)) error {
	log := c.log.With().
		Str("session", uuid.NewString()).
		Str("product", c.product).
		Logger()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("coinbasews: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()
	log.Info().Str("url", c.url).Msg("feed connected")

	sub := subscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{c.product},
		Channels:   []string{"level2"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("coinbasews: subscribe: %w", err)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.isStopped() {
				log.Info().Msg("feed reader stopped")
				return nil
			}
			return fmt.Errorf("coinbasews: read: %w", err)
		}
		handle(payload)
	}
}

// Stop closes the connection, unblocking Run's read loop. Safe to call
// before, during, or after Run.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
