// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
)

// ErrNotConnected fails sends attempted between hub sessions.
var ErrNotConnected = errors.New("not connected to hub")

// ClientConfig describes the worker face's hub connection.
type ClientConfig struct {
	// URL is the hub's WebSocket endpoint.
	URL string

	// Component is this worker face's id; Version its protocol version.
	Component models.ComponentID
	Version   string

	// AuthToken, when set, is presented as a bearer token at handshake.
	AuthToken string

	// SigningSecret, when set, signs every outbound message.
	SigningSecret []byte

	// HeartbeatInterval paces heartbeats to the hub.
	HeartbeatInterval time.Duration

	// DialTimeout bounds the handshake.
	DialTimeout time.Duration
}

// Client is the worker face's connection to the hub. Serve runs one
// session: dial, register, dispatch inbound frames until the connection
// dies. The supervision tree restarts it with backoff, which is the
// reconnect policy.
type Client struct {
	cfg ClientConfig

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool

	handlerMu sync.RWMutex
	handlers  map[string]func(*models.Message)
	fallback  func(*models.Message)
}

// NewClient creates a disconnected client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]func(*models.Message)),
	}
}

// On installs the handler for one message type. Install handlers before
// Serve starts.
func (c *Client) On(msgType string, fn func(*models.Message)) {
	c.handlerMu.Lock()
	c.handlers[msgType] = fn
	c.handlerMu.Unlock()
}

// OnDefault installs the handler for unmatched types.
func (c *Client) OnDefault(fn func(*models.Message)) {
	c.handlerMu.Lock()
	c.fallback = fn
	c.handlerMu.Unlock()
}

// Connected reports whether a session is live.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Send stamps, signs, and writes one message to the hub.
func (c *Client) Send(msg *models.Message) error {
	if msg.Source == "" {
		msg.Source = c.cfg.Component
	}
	if msg.Version == "" {
		msg.Version = c.cfg.Version
	}
	if len(c.cfg.SigningSecret) > 0 {
		if err := msg.Sign(c.cfg.SigningSecret); err != nil {
			return fmt.Errorf("sign message: %w", err)
		}
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Serve runs one hub session until the context ends or the connection
// fails. Returning the error lets the supervision tree restart with
// backoff.
func (c *Client) Serve(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	header := http.Header{}
	if c.cfg.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}
	defer func() { _ = conn.Close() }()

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
	}()

	if err := c.register(); err != nil {
		return err
	}
	logging.Info().
		Str("component", string(c.cfg.Component)).
		Str("hub", c.cfg.URL).
		Msg("registered with hub")

	// Heartbeats ride a separate goroutine; the read loop owns the
	// connection's lifetime.
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(hbCtx)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("hub connection lost: %w", err)
		}

		var msg models.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			logging.Warn().Err(err).Msg("undecodable frame from hub")
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *Client) register() error {
	return c.Send(models.NewMessage(c.cfg.Component, "bridge", models.TypeComponentRegister,
		map[string]interface{}{
			"id":      string(c.cfg.Component),
			"version": c.cfg.Version,
		}))
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := models.NewMessage(c.cfg.Component, "bridge", models.TypeHeartbeat, nil)
			if err := c.Send(hb); err != nil {
				logging.Debug().Err(err).Msg("heartbeat send failed")
				return
			}
		}
	}
}

// dispatch runs the registered handler for the frame. A panicking handler
// is contained; the session survives.
func (c *Client) dispatch(msg *models.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().
				Interface("panic", rec).
				Str("type", msg.Type).
				Msg("recovered panic in message handler")
		}
	}()

	c.handlerMu.RLock()
	fn, ok := c.handlers[msg.Type]
	fallback := c.fallback
	c.handlerMu.RUnlock()

	switch {
	case ok:
		fn(msg)
	case fallback != nil:
		fallback(msg)
	default:
		logging.Debug().Str("type", msg.Type).Msg("unhandled message type")
	}
}
