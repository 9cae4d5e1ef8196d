// Package ingest maintains the WebSocket connection to the upstream
// analysis pipeline and routes its trade and regime events into the core.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message type labels on the upstream feed.
const (
	MsgTradeOpened  = "trade_opened"
	MsgTradeClosed  = "trade_closed"
	MsgTradeReverse = "trade_reversed"
	MsgRegimeChange = "regime_change"
)

// Envelope is the wire frame every feed message arrives in. Payload stays
// raw until the type is known.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler consumes decoded feed events. Implemented by the application
// layer; errors are logged and never tear down the connection.
type Handler interface {
	HandleTradeOpened(ctx context.Context, payload json.RawMessage) error
	HandleTradeClosed(ctx context.Context, payload json.RawMessage) error
	HandleTradeReversed(ctx context.Context, payload json.RawMessage) error
	HandleRegimeChange(ctx context.Context, payload json.RawMessage) error
}

// Feed is a reconnecting WebSocket consumer of the upstream pipeline.
type Feed struct {
	url     string
	handler Handler

	writeMu    sync.Mutex
	conn       *websocket.Conn
	pingCancel context.CancelFunc
}

// NewFeed creates a new feed consumer
func NewFeed(url string, handler Handler) *Feed {
	return &Feed{
		url:     url,
		handler: handler,
	}
}

// Run consumes the feed until the context is canceled, reconnecting with
// exponential backoff after any connection failure.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 60 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.connect(); err != nil {
			log.Printf("⚠️  Feed connection failed: %v (retrying in %v)", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		f.startPing(25 * time.Second)
		f.readLoop(ctx)
		f.close()
	}
}

func (f *Feed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", f.url, err)
	}
	f.conn = conn
	log.Printf("✅ Connected to pattern feed at %s", f.url)
	return nil
}

// readLoop dispatches messages until the connection drops or the context
// is canceled. Handler errors are logged; only read errors exit the loop.
func (f *Feed) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := f.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("⚠️  Feed read error: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("⚠️  Malformed feed message: %v", err)
			continue
		}

		if err := f.dispatch(ctx, env); err != nil {
			log.Printf("⚠️  Feed handler error for %s: %v", env.Type, err)
		}
	}
}

func (f *Feed) dispatch(ctx context.Context, env Envelope) error {
	switch env.Type {
	case MsgTradeOpened:
		return f.handler.HandleTradeOpened(ctx, env.Payload)
	case MsgTradeClosed:
		return f.handler.HandleTradeClosed(ctx, env.Payload)
	case MsgTradeReverse:
		return f.handler.HandleTradeReversed(ctx, env.Payload)
	case MsgRegimeChange:
		return f.handler.HandleRegimeChange(ctx, env.Payload)
	default:
		// Unknown types are tolerated so the feed can evolve ahead of us.
		return nil
	}
}

// startPing starts periodic ping to keep connection alive
func (f *Feed) startPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	f.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := f.writeControl(websocket.PingMessage); err != nil {
					log.Println("Failed to send ping:", err)
					return
				}
			}
		}
	}()
}

func (f *Feed) writeControl(messageType int) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return f.conn.WriteControl(messageType, nil, time.Now().Add(10*time.Second))
}

func (f *Feed) close() {
	if f.pingCancel != nil {
		f.pingCancel()
		f.pingCancel = nil
	}
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}
