// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hclerval/galvanic/internal/pressure"
)

// defaultListLimit applies when ?limit is absent or invalid.
const defaultListLimit = 100

// limitParam reads ?limit, clamped to [1, max].
func limitParam(r *http.Request, max int) int {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// Health reports the hub's overall condition.
//
// @Summary Hub health
// @Description Returns connection counts, memory pressure, and drain state. Status degrades under warning pressure and while draining.
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse "Health snapshot"
// @Router /health [get]
func (s *HubServer) Health(w http.ResponseWriter, r *http.Request) {
	level := pressure.LevelNormal
	var rss int64
	if s.deps.Monitor != nil {
		level = s.deps.Monitor.Level()
		rss = s.deps.Monitor.RSSBytes()
	}
	draining := s.deps.Manager.Draining()

	status := "ok"
	if draining || level >= pressure.LevelWarning {
		status = "degraded"
	}

	WriteSuccess(w, r, map[string]interface{}{
		"status":      status,
		"uptimeMs":    time.Since(s.startedAt).Milliseconds(),
		"connections": s.deps.Manager.Len(),
		"components":  s.deps.Registry.Len(),
		"pressure":    level.String(),
		"rssBytes":    rss,
		"draining":    draining,
	})
}

// Ready reports readiness for traffic.
//
// @Summary Readiness probe
// @Description 503 while the hub is draining or under critical memory pressure.
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse "Ready"
// @Failure 503 {object} APIResponse "Draining or critical pressure"
// @Router /ready [get]
func (s *HubServer) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if s.deps.Manager.Draining() {
		rw.ServiceUnavailable("draining")
		return
	}
	if s.deps.Monitor != nil && s.deps.Monitor.Level() >= pressure.LevelCritical {
		rw.ServiceUnavailable("critical memory pressure")
		return
	}
	rw.Success(map[string]interface{}{"ready": true})
}

// Live is the liveness probe.
//
// @Summary Liveness probe
// @Tags Core
// @Produce json
// @Success 200 {object} APIResponse "Alive"
// @Router /live [get]
func (s *HubServer) Live(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{"alive": true})
}

// Components lists registered components and live connections.
//
// @Summary Registered components
// @Description Component registry entries plus per-connection health and queue depth.
// @Tags Cluster
// @Produce json
// @Success 200 {object} APIResponse "Registry and connection snapshot"
// @Router /components [get]
func (s *HubServer) Components(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"components":  s.deps.Registry.Components(),
		"connections": s.deps.Manager.Snapshot(),
	})
}

// Messages returns the most recent routed messages.
//
// @Summary Recent messages
// @Description Most recent entries from the bounded message ring, oldest first.
// @Tags Cluster
// @Produce json
// @Param limit query int false "Maximum entries (default 100)"
// @Success 200 {object} APIResponse "Message window"
// @Router /messages [get]
func (s *HubServer) Messages(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, s.deps.Log.Cap())
	WriteSuccess(w, r, map[string]interface{}{
		"messages":    s.deps.Log.Recent(limit),
		"total":       s.deps.Log.Len(),
		"overwritten": s.deps.Log.Overwritten(),
	})
}

// DLQ returns dead letters and queue statistics.
//
// @Summary Dead letter queue
// @Tags Cluster
// @Produce json
// @Success 200 {object} APIResponse "Letters and stats"
// @Router /dlq [get]
func (s *HubServer) DLQ(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"letters": s.deps.Letters.Letters(),
		"stats":   s.deps.Letters.GetStats(),
	})
}

// Circuits returns per-target circuit breaker state.
//
// @Summary Circuit breakers
// @Tags Cluster
// @Produce json
// @Success 200 {object} APIResponse "Per-target breaker snapshot"
// @Router /circuits [get]
func (s *HubServer) Circuits(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"circuits": s.deps.Breakers.Snapshot(),
	})
}

// RateLimits returns per-connection token bucket statistics.
//
// @Summary Rate limiter state
// @Tags Cluster
// @Produce json
// @Success 200 {object} APIResponse "Per-key bucket stats"
// @Router /rate-limits [get]
func (s *HubServer) RateLimits(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"keys": s.deps.Limiter.Stats(),
	})
}

// DebugState is the operator's one-stop hub dump.
//
// @Summary Full hub state
// @Description Sliding-window rates, pressure, drain flag, registry, breakers, DLQ, limiter, and dedup cache in one response.
// @Tags Debug
// @Produce json
// @Success 200 {object} APIResponse "Hub state dump"
// @Router /debug/state [get]
func (s *HubServer) DebugState(w http.ResponseWriter, r *http.Request) {
	level := pressure.LevelNormal
	var rss int64
	if s.deps.Monitor != nil {
		level = s.deps.Monitor.Level()
		rss = s.deps.Monitor.RSSBytes()
	}
	seen := s.deps.Seen.GetStats()

	WriteSuccess(w, r, map[string]interface{}{
		"uptimeMs":       time.Since(s.startedAt).Milliseconds(),
		"draining":       s.deps.Manager.Draining(),
		"errorsPerMin":   s.deps.Router.ErrorRate(),
		"successPerMin":  s.deps.Router.SuccessRate(),
		"pressureLevel":  level.String(),
		"rssBytes":       rss,
		"connections":    s.deps.Manager.Snapshot(),
		"components":     s.deps.Registry.Components(),
		"circuits":       s.deps.Breakers.Snapshot(),
		"dlq":            s.deps.Letters.GetStats(),
		"rateLimits":     s.deps.Limiter.Stats(),
		"messagesLogged": s.deps.Log.Len(),
		"seenCache": map[string]interface{}{
			"entries":    s.deps.Seen.Len(),
			"duplicates": seen.Duplicates,
			"inserts":    seen.Inserts,
			"evictions":  seen.Evictions,
		},
	})
}
