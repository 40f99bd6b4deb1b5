// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package ratelimit implements the hub's per-connection token bucket limiter.
//
// Buckets are created lazily on first use and reaped once idle beyond the
// configured age, so a churning connection population does not leak limiter
// state. Each bucket is a golang.org/x/time/rate.Limiter.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hclerval/galvanic/internal/metrics"
)

// Config holds token bucket parameters shared by all keys.
type Config struct {
	// Refill is the sustained rate in tokens per second.
	Refill float64

	// Burst is the bucket capacity.
	Burst int

	// IdleTimeout is how long an unused bucket survives before the
	// cleanup pass reaps it.
	IdleTimeout time.Duration
}

// DefaultConfig returns production defaults: 50 msg/s sustained with a
// burst of 100, buckets reaped after five idle minutes.
func DefaultConfig() Config {
	return Config{
		Refill:      50,
		Burst:       100,
		IdleTimeout: 5 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	allowed  int64
	denied   int64
}

// KeyStats is a point-in-time view of one bucket for GET /rate-limits.
type KeyStats struct {
	Key      string    `json:"key"`
	Tokens   float64   `json:"tokens"`
	Allowed  int64     `json:"allowed"`
	Denied   int64     `json:"denied"`
	LastSeen time.Time `json:"lastSeen"`
}

// Limiter maintains one token bucket per key.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a limiter. Non-positive parameters fall back to defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Refill <= 0 {
		cfg.Refill = def.Refill
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from the key's bucket if available. The bucket is
// created on first use.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.Refill), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	admitted := b.limiter.Allow()
	if admitted {
		b.allowed++
	} else {
		b.denied++
		metrics.RateLimitHits.WithLabelValues("connection").Inc()
	}
	l.mu.Unlock()
	return admitted
}

// RetryAfter estimates how long the key must wait for the next token. Used
// to fill the retryAfter hint on rate-limit rejection frames.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	deficit := 1 - b.limiter.Tokens()
	if deficit <= 0 {
		return 0
	}
	seconds := deficit / l.cfg.Refill
	return time.Duration(math.Ceil(seconds*1000)) * time.Millisecond
}

// Remove drops the key's bucket, typically on connection close.
func (l *Limiter) Remove(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// CleanupIdle reaps buckets unused beyond the idle timeout and returns how
// many were removed.
func (l *Limiter) CleanupIdle() int {
	cutoff := time.Now().Add(-l.cfg.IdleTimeout)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of every live bucket.
func (l *Limiter) Stats() []KeyStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]KeyStats, 0, len(l.buckets))
	for key, b := range l.buckets {
		out = append(out, KeyStats{
			Key:      key,
			Tokens:   b.limiter.Tokens(),
			Allowed:  b.allowed,
			Denied:   b.denied,
			LastSeen: b.lastSeen,
		})
	}
	return out
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
