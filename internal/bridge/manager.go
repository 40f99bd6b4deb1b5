// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

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

// ManagerConfig sizes the connection table and its health bookkeeping.
type ManagerConfig struct {
	// SendQueueSize bounds each connection's outbound queue.
	SendQueueSize int

	// HealthInitial is a fresh connection's score; HealthFloor is the
	// kick threshold.
	HealthInitial int
	HealthFloor   int

	// StaleThreshold is the idle span after which the reaper kicks.
	StaleThreshold time.Duration

	// PingInterval paces writer-pump pings.
	PingInterval time.Duration
}

// KickFunc observes a kicked connection after its registry entries are
// cleared.
type KickFunc func(connID string, components []models.ComponentID, reason string)

// Manager holds the authoritative table of live connections.
type Manager struct {
	cfg      ManagerConfig
	registry *Registry

	mu    sync.RWMutex
	conns map[string]*Conn

	draining atomic.Bool
	onKick   KickFunc
}

// NewManager creates a connection manager bound to the component registry.
func NewManager(cfg ManagerConfig, registry *Registry) *Manager {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.HealthInitial <= 0 {
		cfg.HealthInitial = 100
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		registry: registry,
		conns:    make(map[string]*Conn),
	}
}

// OnKick installs the kick observer. Must be called before traffic starts.
func (m *Manager) OnKick(fn KickFunc) { m.onKick = fn }

// Register creates the connection record and starts its writer pump.
func (m *Manager) Register(id string, sock *websocket.Conn) *Conn {
	conn := newConn(id, sock, m.cfg.SendQueueSize, m.cfg.HealthInitial)

	m.mu.Lock()
	m.conns[id] = conn
	total := len(m.conns)
	m.mu.Unlock()

	go conn.writePump(m.cfg.PingInterval)

	logging.Info().Str("conn", id).Int("total", total).Msg("connection accepted")
	return conn
}

func (m *Manager) get(id string) *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[id]
}

// Send enqueues a frame for the connection. A full queue drops the frame,
// records an error against the connection, and returns false. Never blocks.
func (m *Manager) Send(id string, frame []byte) bool {
	conn := m.get(id)
	if conn == nil {
		return false
	}
	if !conn.enqueue(frame) {
		metrics.WSSendQueueDrops.WithLabelValues(string(conn.Component())).Inc()
		m.RecordError(id)
		return false
	}
	return true
}

// SendToComponent resolves the component and enqueues the frame.
func (m *Manager) SendToComponent(component models.ComponentID, frame []byte) bool {
	connID, ok := m.registry.Resolve(component)
	if !ok {
		return false
	}
	return m.Send(connID, frame)
}

// RecordActivity refreshes the connection's last-activity timestamp.
func (m *Manager) RecordActivity(id string) {
	if conn := m.get(id); conn != nil {
		conn.touch()
	}
}

// RecordSuccess drains a little of the accumulated damage from the health
// score. Recovery is deliberately slower than decay.
func (m *Manager) RecordSuccess(id string) {
	conn := m.get(id)
	if conn == nil {
		return
	}
	conn.mu.Lock()
	if conn.health < m.cfg.HealthInitial {
		conn.health++
	}
	conn.lastActivity = time.Now()
	health := conn.health
	component := conn.component
	conn.mu.Unlock()

	if component != "" {
		metrics.SetHealthScore(string(component), health)
	}
}

// RecordError decrements the health score and kicks once it crosses the
// floor.
func (m *Manager) RecordError(id string) {
	conn := m.get(id)
	if conn == nil {
		return
	}
	conn.mu.Lock()
	conn.errorCount++
	conn.health -= 5
	health := conn.health
	component := conn.component
	conn.mu.Unlock()

	if component != "" {
		metrics.SetHealthScore(string(component), health)
	}
	if health < m.cfg.HealthFloor {
		m.Kick(id, "health below floor")
	}
}

// Kick closes the socket, removes the record, clears registry entries, and
// fires the kick callback.
func (m *Manager) Kick(id, reason string) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	conn.closeSend()
	_ = conn.sock.Close()

	components := m.registry.UnregisterConn(id)
	for _, component := range components {
		metrics.RemoveHealthScore(string(component))
		metrics.RecordDisconnection(component.Kind().String())
	}
	metrics.RecordKick(kickReasonLabel(reason))

	logging.Info().
		Str("conn", id).
		Str("reason", reason).
		Interface("components", components).
		Msg("connection kicked")

	if m.onKick != nil {
		m.onKick(id, components, reason)
	}
}

// kickReasonLabel folds free-form reasons onto the metric's label set.
func kickReasonLabel(reason string) string {
	switch reason {
	case "stale", "health below floor", "Incompatible version", "replaced", "admin", "drain":
		switch reason {
		case "health below floor":
			return "health"
		case "Incompatible version":
			return "version"
		default:
			return reason
		}
	default:
		return "other"
	}
}

// Remove drops the record for a connection that closed on its own.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	conn, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	conn.closeSend()
	components := m.registry.UnregisterConn(id)
	for _, component := range components {
		metrics.RemoveHealthScore(string(component))
		metrics.RecordDisconnection(component.Kind().String())
	}
	if m.onKick != nil {
		m.onKick(id, components, "closed")
	}
	logging.Info().Str("conn", id).Msg("connection closed")
}

// ReapStale kicks every connection idle beyond the stale threshold.
// Returns the number kicked.
func (m *Manager) ReapStale() int {
	if m.cfg.StaleThreshold <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-m.cfg.StaleThreshold)

	m.mu.RLock()
	var stale []string
	for id, conn := range m.conns {
		conn.mu.Lock()
		idle := conn.lastActivity.Before(cutoff)
		conn.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.Kick(id, "stale")
	}
	return len(stale)
}

// Draining reports whether Drain has begun.
func (m *Manager) Draining() bool { return m.draining.Load() }

// Drain stops accepting, waits for send queues to empty or the deadline,
// then force-closes the rest. Returns the number force-closed.
func (m *Manager) Drain(timeout time.Duration) int {
	m.draining.Store(true)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if m.pendingFrames() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	m.mu.Lock()
	remaining := make([]*Conn, 0, len(m.conns))
	for id, conn := range m.conns {
		remaining = append(remaining, conn)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, conn := range remaining {
		conn.closeSend()
		_ = conn.sock.Close()
		m.registry.UnregisterConn(conn.id)
	}

	logging.Info().Int("closed", len(remaining)).Msg("drain complete")
	return len(remaining)
}

func (m *Manager) pendingFrames() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, conn := range m.conns {
		total += len(conn.send)
	}
	return total
}

// Len returns the number of live connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Snapshot returns a view of every live connection.
func (m *Manager) Snapshot() []ConnInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnInfo, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn.info())
	}
	return out
}

// SetComponent records registration metadata on the connection.
func (m *Manager) SetComponent(id string, component models.ComponentID, version string) {
	if conn := m.get(id); conn != nil {
		conn.setComponent(component, version)
	}
}
