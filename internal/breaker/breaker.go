// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package breaker wraps sony/gobreaker behind a per-target registry.
//
// The hub keeps one breaker per routing target; the worker face keeps one for
// its executor peer. Breakers are created lazily with shared settings: trip
// after N consecutive failures, admit a single probe after the reset timeout.
// Reset swaps in a fresh instance, which is the only way gobreaker can be
// forced closed.
package breaker

import (
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
)

// Config holds settings applied to every breaker in a registry.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold uint32

	// ResetTimeout is how long an open breaker waits before admitting a
	// half-open probe.
	ResetTimeout time.Duration
}

// DefaultConfig returns production defaults: open after 5 consecutive
// failures, probe after 30 seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// State is a point-in-time view of one breaker for GET /circuits.
type State struct {
	Name                string    `json:"name"`
	State               string    `json:"state"` // "closed", "half-open", "open"
	Requests            uint32    `json:"requests"`
	TotalFailures       uint32    `json:"totalFailures"`
	ConsecutiveFailures uint32    `json:"consecutiveFailures"`
	OpenSince           time.Time `json:"openSince,omitzero"`
	RemainingCooldownMs int64     `json:"remainingCooldownMs,omitempty"`
	FailureThreshold    uint32    `json:"failureThreshold"`
	ResetTimeoutMs      int64     `json:"resetTimeoutMs"`
}

type entry struct {
	cb        *gobreaker.TwoStepCircuitBreaker[any]
	openSince time.Time
}

// Registry holds one breaker per named target, created lazily.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates a breaker registry. Zero config fields fall back to
// defaults.
func NewRegistry(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &Registry{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// newEntry builds a breaker wired to the registry's open-since bookkeeping
// and the shared gauges. Callers hold r.mu.
func (r *Registry) newEntry(name string) *entry {
	e := &entry{}
	e.cb = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one half-open probe
		Timeout:     r.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.mu.Lock()
			if cur, ok := r.entries[name]; ok && cur == e {
				if to == gobreaker.StateOpen {
					cur.openSince = time.Now()
				} else {
					cur.openSince = time.Time{}
				}
			}
			r.mu.Unlock()

			fromStr, toStr := stateString(from), stateString(to)
			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("circuit breaker state transition")
			metrics.RecordBreakerTransition(name, fromStr, toStr, stateValue(to))
		},
	})
	return e
}

func (r *Registry) entryFor(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = r.newEntry(name)
		r.entries[name] = e
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	}
	return e
}

// errOutcomeFailure is what a failed outcome reports to gobreaker; the
// two-step done counts any non-nil error as a failure.
var errOutcomeFailure = errors.New("request failed")

// Allow asks the target's breaker to admit a request. On admission it
// returns a done callback that must be invoked exactly once with the
// outcome. A nil done with err set means the request was rejected.
func (r *Registry) Allow(name string) (func(success bool), error) {
	e := r.entryFor(name)
	done, err := e.cb.Allow()
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		return nil, err
	}
	return func(success bool) {
		if success {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
			done(nil)
			return
		}
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		done(errOutcomeFailure)
	}, nil
}

// Reset forces the named breaker closed by replacing it with a fresh
// instance. A no-op for unknown names.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return false
	}
	r.entries[name] = r.newEntry(name)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	logging.Info().Str("breaker", name).Msg("circuit breaker reset to closed")
	return true
}

// IsOpen reports whether the named breaker currently rejects requests. An
// unknown name is closed by definition.
func (r *Registry) IsOpen(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return e.cb.State() == gobreaker.StateOpen
}

// RemainingCooldown reports how long until an open breaker admits its probe.
// Zero for breakers that are not open.
func (r *Registry) RemainingCooldown(name string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok || e.openSince.IsZero() {
		return 0
	}
	remaining := r.cfg.ResetTimeout - time.Since(e.openSince)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns the state of every known breaker.
func (r *Registry) Snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]State, 0, len(r.entries))
	for name, e := range r.entries {
		counts := e.cb.Counts()
		s := State{
			Name:                name,
			State:               stateString(e.cb.State()),
			Requests:            counts.Requests,
			TotalFailures:       counts.TotalFailures,
			ConsecutiveFailures: counts.ConsecutiveFailures,
			OpenSince:           e.openSince,
			FailureThreshold:    r.cfg.FailureThreshold,
			ResetTimeoutMs:      r.cfg.ResetTimeout.Milliseconds(),
		}
		if !e.openSince.IsZero() {
			remaining := r.cfg.ResetTimeout - time.Since(e.openSince)
			if remaining > 0 {
				s.RemainingCooldownMs = remaining.Milliseconds()
			}
		}
		out = append(out, s)
	}
	return out
}

// Len returns the number of breakers created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 2
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
