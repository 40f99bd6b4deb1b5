// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package cache

import (
	"sync"
	"time"
)

// SeenCache remembers recently observed message ids for deduplication.
// Entries expire after a TTL or, when the cache is at capacity, by oldest-first
// eviction. A background sweeper reclaims expired entries so memory tracks the
// live population rather than the historical one.
type SeenCache struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	order    []seenEntry // insertion FIFO; may hold superseded records, skipped on pop
	capacity int
	ttl      time.Duration

	stats SeenStats

	stop     chan struct{}
	stopOnce sync.Once
}

type seenEntry struct {
	id string
	at time.Time
}

// SeenStats tracks dedupe cache behavior for the stats endpoint.
type SeenStats struct {
	Duplicates int64
	Inserts    int64
	Evictions  int64
	LastSweep  time.Time
}

// NewSeen creates a seen-id cache with the given capacity and TTL and starts
// a background sweeper that fires every sweepInterval. Close stops the sweeper.
//
// Non-positive arguments fall back to 10000 entries, 5 minutes, and 1 minute.
func NewSeen(capacity int, ttl, sweepInterval time.Duration) *SeenCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	s := &SeenCache{
		entries:  make(map[string]time.Time, capacity),
		capacity: capacity,
		ttl:      ttl,
		stats:    SeenStats{LastSweep: time.Now()},
		stop:     make(chan struct{}),
	}

	go s.sweepLoop(sweepInterval)

	return s
}

// IsDuplicate reports whether id was observed within the TTL. When it was not,
// the id is recorded in the same locked step, so for concurrent calls with the
// same id exactly one caller receives false.
func (s *SeenCache) IsDuplicate(id string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.entries[id]; ok && now.Sub(at) < s.ttl {
		s.stats.Duplicates++
		return true
	}

	if _, exists := s.entries[id]; !exists && len(s.entries) >= s.capacity {
		s.evictOldestLocked()
	}
	s.entries[id] = now
	s.order = append(s.order, seenEntry{id: id, at: now})
	s.stats.Inserts++
	return false
}

// Contains reports membership without inserting. Expired entries count as absent.
func (s *SeenCache) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[id]
	return ok && time.Since(at) < s.ttl
}

// Sweep removes all expired entries and returns how many were reclaimed.
// The background loop calls this; it is exported for tests and manual drains.
func (s *SeenCache) Sweep() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, at := range s.entries {
		if now.Sub(at) >= s.ttl {
			delete(s.entries, id)
			removed++
		}
	}

	// Drop FIFO heads that no longer back a live entry.
	for len(s.order) > 0 {
		head := s.order[0]
		if at, ok := s.entries[head.id]; ok && at.Equal(head.at) {
			break
		}
		s.order = s.order[1:]
	}

	s.stats.Evictions += int64(removed)
	s.stats.LastSweep = now
	return removed
}

// Len returns the current number of tracked ids, expired or not.
func (s *SeenCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// GetStats returns a snapshot of cache statistics.
func (s *SeenCache) GetStats() SeenStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close stops the background sweeper. Safe to call more than once.
func (s *SeenCache) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// evictOldestLocked removes the oldest live entry. FIFO records superseded by
// a refresh of the same id are skipped. Caller holds the lock.
func (s *SeenCache) evictOldestLocked() {
	for len(s.order) > 0 {
		head := s.order[0]
		s.order = s.order[1:]

		at, ok := s.entries[head.id]
		if !ok || !at.Equal(head.at) {
			continue
		}
		delete(s.entries, head.id)
		s.stats.Evictions++
		return
	}
}

func (s *SeenCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}
