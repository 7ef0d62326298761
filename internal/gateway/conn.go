// Package gateway maintains the websocket connection that delivers
// state-change notifications from the chat service: connect, identify,
// heartbeat, decode dispatch frames into typed events, keep the entity cache
// current, and fan events out to registered handlers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/entity"
)

// Config configures a gateway Connection.
type Config struct {
	// URL is the websocket gateway URL, usually from rest.Client.GatewayURL.
	URL string
	// Token authenticates the identify frame.
	Token string
	// Cache receives entity updates. If nil, a private cache is created.
	Cache *entity.Cache
	// Logger is used for connection lifecycle logging. If nil, logging is
	// disabled.
	Logger *zap.Logger
	// ReconnectBackoff is the initial delay between reconnect attempts,
	// doubled up to a cap. Defaults to one second.
	ReconnectBackoff time.Duration
}

// Connection is a long-lived gateway session. Run connects and blocks,
// reconnecting with exponential backoff until the context is cancelled.
type Connection struct {
	url        string
	token      string
	cache      *entity.Cache
	logger     *zap.Logger
	dispatcher *dispatcher
	backoff    time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	lastSeq atomic.Int64
}

// NewConnection creates a Connection. Handlers may be registered before or
// after Run starts.
func NewConnection(cfg Config) (*Connection, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("gateway: URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = entity.NewCache()
	}
	backoff := cfg.ReconnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Connection{
		url:        cfg.URL,
		token:      cfg.Token,
		cache:      cache,
		logger:     logger,
		dispatcher: newDispatcher(cache, logger),
		backoff:    backoff,
	}, nil
}

// On registers a handler for an event type (see the Event* constants).
func (c *Connection) On(eventType string, h Handler) {
	c.dispatcher.on(eventType, h)
}

// Cache returns the entity cache this connection keeps current.
func (c *Connection) Cache() *entity.Cache {
	return c.cache
}

// Run connects and processes the stream until ctx is cancelled. Transient
// disconnects are retried with exponential backoff capped at one minute.
func (c *Connection) Run(ctx context.Context) error {
	backoff := c.backoff
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("gateway connection lost, reconnecting",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		backoff *= 2
		if backoff > time.Minute {
			backoff = time.Minute
		}
	}
}

func (c *Connection) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	c.setConn(conn)
	defer func() {
		_ = conn.Close()
		c.setConn(nil)
	}()

	// The read pump blocks in ReadJSON; closing the socket is the only way
	// to unblock it when the context ends.
	stopWatcher := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopWatcher()

	// The server speaks first with a hello frame carrying the heartbeat
	// interval.
	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello frame, got op %d", hello.Op)
	}
	var helloPayload helloData
	if err := json.Unmarshal(hello.Data, &helloPayload); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	if err := c.identify(conn); err != nil {
		return err
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeatLoop(heartbeatCtx, conn, time.Duration(helloPayload.HeartbeatIntervalMS)*time.Millisecond)

	c.logger.Info("gateway connected", zap.String("url", c.url))

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if f.Seq > 0 {
			c.lastSeq.Store(f.Seq)
		}

		switch f.Op {
		case opDispatch:
			c.dispatcher.dispatch(f.Type, f.Data)
		case opHeartbeat:
			// Server requested an immediate heartbeat.
			if err := c.writeJSON(frame{Op: opHeartbeat, Seq: c.lastSeq.Load()}); err != nil {
				return err
			}
		case opHeartbeatACK:
			// Nothing to track yet; a missed-ACK watchdog would hang here.
		default:
			c.logger.Debug("ignoring gateway frame", zap.Int("op", f.Op))
		}
	}
}

func (c *Connection) identify(conn *websocket.Conn) error {
	payload, err := json.Marshal(identifyData{
		Token: c.token,
		Properties: map[string]any{
			"os":      runtime.GOOS,
			"browser": "chatwire",
			"device":  "chatwire",
		},
	})
	if err != nil {
		return fmt.Errorf("marshal identify: %w", err)
	}
	return c.writeJSON(frame{Op: opIdentify, Data: payload})
}

func (c *Connection) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writeJSON(frame{Op: opHeartbeat, Seq: c.lastSeq.Load()}); err != nil {
				c.logger.Warn("heartbeat write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeJSON serializes writes; the read pump and heartbeat loop share the
// connection and gorilla/websocket allows only one concurrent writer.
func (c *Connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("gateway: not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *Connection) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}
