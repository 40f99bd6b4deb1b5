// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package bridge implements the hub core: the connection manager, the
// component registry, the routing pipeline, and the WebSocket transport.
package bridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
)

const writeWait = 10 * time.Second

// Conn is the hub-side state for one accepted socket. The manager owns it
// exclusively; a single writer pump drains the send queue so the routing
// path never blocks on a slow socket.
type Conn struct {
	id   string
	sock *websocket.Conn

	// send is the bounded outbound queue. Closed exactly once by the
	// manager; the writer pump then writes a close frame and exits.
	send      chan []byte
	closeOnce sync.Once

	mu           sync.Mutex
	health       int
	errorCount   int
	connectedAt  time.Time
	lastActivity time.Time
	component    models.ComponentID
	version      string

	messagesSent atomic.Int64
}

// ConnInfo is a point-in-time view of one connection for GET /components
// and /debug/state.
type ConnInfo struct {
	ID           string             `json:"id"`
	Component    models.ComponentID `json:"component,omitempty"`
	Version      string             `json:"version,omitempty"`
	Health       int                `json:"health"`
	Errors       int                `json:"errors"`
	QueueDepth   int                `json:"queueDepth"`
	MessagesSent int64              `json:"messagesSent"`
	ConnectedAt  time.Time          `json:"connectedAt"`
	LastActivity time.Time          `json:"lastActivity"`
}

func newConn(id string, sock *websocket.Conn, queueSize, health int) *Conn {
	now := time.Now()
	return &Conn{
		id:           id,
		sock:         sock,
		send:         make(chan []byte, queueSize),
		health:       health,
		connectedAt:  now,
		lastActivity: now,
	}
}

// ID returns the connection id assigned at accept time.
func (c *Conn) ID() string { return c.id }

// Component returns the registered component id, empty before registration.
func (c *Conn) Component() models.ComponentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.component
}

func (c *Conn) setComponent(id models.ComponentID, version string) {
	c.mu.Lock()
	c.component = id
	c.version = version
	c.mu.Unlock()
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Conn) info() ConnInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnInfo{
		ID:           c.id,
		Component:    c.component,
		Version:      c.version,
		Health:       c.health,
		Errors:       c.errorCount,
		QueueDepth:   len(c.send),
		MessagesSent: c.messagesSent.Load(),
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastActivity,
	}
}

// enqueue places a frame on the send queue without blocking. Returns false
// when the queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send queue exactly once.
func (c *Conn) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump is the single writer for this connection. It drains the send
// queue in enqueue order and pings on the heartbeat interval. Exits on the
// first write error or when the send queue is closed.
func (c *Conn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Str("conn", c.id).Err(err).Msg("write failed, closing connection")
				return
			}
			c.messagesSent.Add(1)
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
