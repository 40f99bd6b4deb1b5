// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package bridge

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/pressure"
	"github.com/hclerval/galvanic/internal/ratelimit"
)

// pongWait must exceed the ping interval so a healthy peer never misses
// the read deadline.
const pongWaitFactor = 3

// AuthFunc authenticates an upgrade request. A nil AuthFunc admits everyone.
type AuthFunc func(r *http.Request) error

// TransportConfig carries the accept-path policy.
type TransportConfig struct {
	MaxConnections int
	MaxMessageSize int
	PingInterval   time.Duration
	Authenticate   AuthFunc
}

// Transport owns the /ws endpoint: handshake gating, the upgrade, and the
// per-connection read loop.
type Transport struct {
	cfg      TransportConfig
	manager  *Manager
	router   *Router
	limiter  *ratelimit.Limiter
	monitor  *pressure.Monitor
	upgrader websocket.Upgrader
}

// NewTransport builds the WebSocket accept path.
func NewTransport(cfg TransportConfig, manager *Manager, router *Router, limiter *ratelimit.Limiter, monitor *pressure.Monitor) *Transport {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Transport{
		cfg:     cfg,
		manager: manager,
		router:  router,
		limiter: limiter,
		monitor: monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers are local processes and CLI tools, not browsers with
			// an Origin to enforce.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP gates and upgrades one handshake, then runs the read loop until
// the peer disconnects.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.manager.Draining() {
		metrics.RecordHandshakeRejection("draining")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if t.monitor != nil && t.monitor.Level() >= pressure.LevelCritical {
		metrics.RecordHandshakeRejection("memory")
		http.Error(w, "over memory limit", http.StatusServiceUnavailable)
		return
	}
	if t.cfg.MaxConnections > 0 && t.manager.Len() >= t.cfg.MaxConnections {
		metrics.RecordHandshakeRejection("capacity")
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}
	if t.cfg.Authenticate != nil {
		if err := t.cfg.Authenticate(r); err != nil {
			metrics.RecordHandshakeRejection("auth")
			logging.Warn().Str("remote", r.RemoteAddr).Err(err).Msg("handshake rejected")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	sock, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Str("remote", r.RemoteAddr).Err(err).Msg("upgrade failed")
		return
	}

	connID := uuid.New().String()
	t.manager.Register(connID, sock)
	go t.readLoop(connID, sock)
}

// readLoop pulls frames off the socket and hands them to the router. The
// read limit sits above the routing size cap so an oversize frame reaches
// the router, which answers with an error frame, instead of tearing the
// socket down.
func (t *Transport) readLoop(connID string, sock *websocket.Conn) {
	defer func() {
		t.manager.Remove(connID)
		t.limiter.Remove(connID)
	}()

	sock.SetReadLimit(int64(2 * t.cfg.MaxMessageSize))

	pongWait := pongWaitFactor * t.cfg.PingInterval
	_ = sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		t.manager.RecordActivity(connID)
		return sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Str("conn", connID).Err(err).Msg("connection read error")
			}
			return
		}
		_ = sock.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		t.router.HandleFrame(connID, frame)
	}
}
