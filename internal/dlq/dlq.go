// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package dlq implements the hub's bounded dead letter queue.
//
// Undeliverable messages are wrapped in letters keyed by (message id, target).
// Re-enqueueing the same pair increments its attempt counter instead of adding
// a second letter. A letter that reaches the configured attempt budget is
// evicted and reported through the permanent-failure callback exactly once.
// At capacity the oldest letter is dropped silently, with a metric increment
// as the only trace.
package dlq

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
)

// ErrorCategory categorizes delivery failures for routing and metrics.
type ErrorCategory int

const (
	// ErrorCategoryUnknown is the default category for unclassified failures.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConnection indicates the target connection failed or is gone.
	ErrorCategoryConnection
	// ErrorCategoryTimeout indicates the delivery timed out.
	ErrorCategoryTimeout
	// ErrorCategoryValidation indicates the message was rejected as malformed.
	ErrorCategoryValidation
	// ErrorCategoryCapacity indicates a full send queue or similar limit.
	ErrorCategoryCapacity
	// ErrorCategoryCircuit indicates the target's circuit breaker was open.
	ErrorCategoryCircuit
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryCapacity:
		return "capacity"
	case ErrorCategoryCircuit:
		return "circuit"
	default:
		return "unknown"
	}
}

// CategorizeReason maps a failure reason string onto an ErrorCategory.
func CategorizeReason(reason string) ErrorCategory {
	switch {
	case containsAny(reason, "circuit", "breaker"):
		return ErrorCategoryCircuit
	case containsAny(reason, "connection", "connect", "refused", "reset", "closed", "not connected"):
		return ErrorCategoryConnection
	case containsAny(reason, "timeout", "deadline", "timed out"):
		return ErrorCategoryTimeout
	case containsAny(reason, "invalid", "validation", "malformed", "parse", "schema"):
		return ErrorCategoryValidation
	case containsAny(reason, "capacity", "full", "limit", "exceeded", "queue"):
		return ErrorCategoryCapacity
	default:
		return ErrorCategoryUnknown
	}
}

// containsAny checks if the string contains any of the substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if containsIgnoreCase(s, sub) {
			return true
		}
	}
	return false
}

// containsIgnoreCase performs case-insensitive substring search.
func containsIgnoreCase(s, substr string) bool {
	if len(substr) > len(s) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			c1 := s[i+j]
			c2 := substr[j]
			if c1 >= 'A' && c1 <= 'Z' {
				c1 += 'a' - 'A'
			}
			if c2 >= 'A' && c2 <= 'Z' {
				c2 += 'a' - 'A'
			}
			if c1 != c2 {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Letter wraps an undeliverable message awaiting redelivery.
type Letter struct {
	// Message is the original message that could not be delivered.
	Message models.Message `json:"message"`

	// Target is the component the delivery was destined for.
	Target models.ComponentID `json:"target"`

	// Reason is the failure reason from the first delivery attempt.
	Reason string `json:"reason"`

	// LastReason is the failure reason from the most recent attempt.
	LastReason string `json:"lastReason"`

	// Attempts counts failed delivery attempts, including the one that
	// created the letter.
	Attempts int `json:"attempts"`

	// EnqueuedAt is when the letter was created.
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// LastAttempt is when the most recent failure occurred.
	LastAttempt time.Time `json:"lastAttempt"`

	// NextRetry is the earliest time the retry worker may redeliver.
	NextRetry time.Time `json:"nextRetry"`

	// Category is the failure category derived from the first reason.
	Category ErrorCategory `json:"-"`
}

func letterKey(msgID string, target models.ComponentID) string {
	// Component ids cannot contain '|', so the composite is unambiguous.
	return msgID + "|" + string(target)
}

// Config holds configuration for the dead letter queue.
type Config struct {
	// MaxAttempts is the attempt budget before a letter permanently fails.
	MaxAttempts int

	// MaxEntries bounds the queue; the oldest letter is dropped on overflow.
	MaxEntries int

	// RetentionTime is how long letters may sit before Cleanup reclaims them.
	RetentionTime time.Duration

	// InitialBackoff is the delay before the first redelivery.
	InitialBackoff time.Duration

	// MaxBackoff caps the redelivery delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor (default 2.0).
	BackoffMultiplier float64

	// JitterFraction randomizes backoff by +/- this fraction (default 0.1).
	JitterFraction float64

	// RandomSeed seeds the jitter source. Zero selects a time-based seed;
	// tests pass a fixed seed for reproducible delays.
	RandomSeed int64
}

// DefaultConfig returns production defaults for the dead letter queue.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		MaxEntries:        1000,
		RetentionTime:     time.Hour,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// Stats holds runtime statistics for the queue.
type Stats struct {
	TotalEntries      int64                   `json:"totalEntries"`
	TotalAdded        int64                   `json:"totalAdded"`
	TotalRemoved      int64                   `json:"totalRemoved"`
	TotalRetries      int64                   `json:"totalRetries"`
	TotalDropped      int64                   `json:"totalDropped"`
	TotalFailed       int64                   `json:"totalFailed"`
	OldestEntry       time.Time               `json:"oldestEntry,omitzero"`
	NewestEntry       time.Time               `json:"newestEntry,omitzero"`
	EntriesByCategory map[ErrorCategory]int64 `json:"-"`
}

// PermanentFailureFunc receives letters that exhausted their attempt budget.
// The queue guarantees at most one call per letter.
type PermanentFailureFunc func(letter Letter)

// Queue is the bounded dead letter queue.
//
// Letters are indexed by (message id, target) and ordered by enqueue time in a
// min-heap, so capacity eviction and retention cleanup both take the oldest
// letters first.
type Queue struct {
	config      Config
	onPermanent PermanentFailureFunc

	mu      sync.Mutex
	letters *cache.MinHeap[*Letter]

	totalAdded   atomic.Int64
	totalRemoved atomic.Int64
	totalRetries atomic.Int64
	totalDropped atomic.Int64
	totalFailed  atomic.Int64

	randMu sync.Mutex
	rng    *rand.Rand
}

// New creates a dead letter queue. onPermanent may be nil.
func New(cfg Config, onPermanent PermanentFailureFunc) (*Queue, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be positive")
	}
	if cfg.MaxEntries <= 0 {
		return nil, errors.New("max entries must be positive")
	}
	if cfg.InitialBackoff <= 0 {
		return nil, errors.New("initial backoff must be positive")
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = cfg.InitialBackoff * 64
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.JitterFraction <= 0 || cfg.JitterFraction > 1.0 {
		cfg.JitterFraction = 0.1
	}
	if cfg.RetentionTime <= 0 {
		cfg.RetentionTime = time.Hour
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Queue{
		config:      cfg,
		onPermanent: onPermanent,
		letters:     cache.NewMinHeap[*Letter](cfg.MaxEntries),
		//nolint:gosec // G404: weak random is fine for non-cryptographic backoff jitter
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Enqueue records a failed delivery. A first failure for (msg.id, target)
// appends a new letter; a repeat increments the existing letter's attempt
// counter. When the counter reaches MaxAttempts the letter is evicted and the
// permanent-failure callback fires exactly once. Returns the letter state
// after the call and whether it permanently failed.
func (q *Queue) Enqueue(msg models.Message, target models.ComponentID, reason string) (Letter, bool) {
	now := time.Now()
	key := letterKey(msg.ID, target)

	var failed *Letter
	var result Letter

	q.mu.Lock()
	if item := q.letters.Get(key); item != nil {
		letter := item.Value
		letter.Attempts++
		letter.LastReason = reason
		letter.LastAttempt = now
		letter.NextRetry = now.Add(q.backoff(letter.Attempts))
		q.totalRetries.Add(1)

		if letter.Attempts >= q.config.MaxAttempts {
			q.letters.Remove(key)
			q.totalFailed.Add(1)
			failed = letter
		}
		result = *letter
	} else {
		letter := &Letter{
			Message:     msg,
			Target:      target,
			Reason:      reason,
			LastReason:  reason,
			Attempts:    1,
			EnqueuedAt:  now,
			LastAttempt: now,
			NextRetry:   now.Add(q.backoff(1)),
			Category:    CategorizeReason(reason),
		}

		if evicted := q.letters.Push(key, letter, now); evicted != nil {
			q.totalDropped.Add(1)
			metrics.RecordDLQDrop(evicted.Value.Category.String())
		}
		q.totalAdded.Add(1)
		metrics.RecordDLQEntry(letter.Category.String())
		result = *letter
	}
	q.mu.Unlock()

	if failed != nil {
		metrics.RecordDLQPermanentFailure(failed.Category.String())
		if q.onPermanent != nil {
			q.onPermanent(*failed)
		}
		return result, true
	}
	return result, false
}

// Get returns a copy of the letter for (msgID, target), if present.
func (q *Queue) Get(msgID string, target models.ComponentID) (Letter, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.letters.Get(letterKey(msgID, target))
	if item == nil {
		return Letter{}, false
	}
	return *item.Value, true
}

// Remove deletes the letter for (msgID, target) after a successful redelivery.
// Returns true when a letter was present.
func (q *Queue) Remove(msgID string, target models.ComponentID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.letters.Remove(letterKey(msgID, target))
	if removed == nil {
		return false
	}
	q.totalRemoved.Add(1)
	metrics.RecordDLQRemoval(removed.Value.Category.String())
	return true
}

// PendingRetries returns copies of letters whose NextRetry has passed and
// whose attempt budget is not exhausted.
func (q *Queue) PendingRetries() []Letter {
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []Letter
	for _, item := range q.letters.All() {
		letter := item.Value
		if letter.Attempts < q.config.MaxAttempts && !letter.NextRetry.After(now) {
			pending = append(pending, *letter)
		}
	}
	return pending
}

// Letters returns copies of all queued letters.
func (q *Queue) Letters() []Letter {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.letters.All()
	out := make([]Letter, 0, len(items))
	for _, item := range items {
		out = append(out, *item.Value)
	}
	return out
}

// LettersFor returns copies of all letters destined for target.
func (q *Queue) LettersFor(target models.ComponentID) []Letter {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Letter
	for _, item := range q.letters.All() {
		if item.Value.Target == target {
			out = append(out, *item.Value)
		}
	}
	return out
}

// Len returns the current number of letters.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.letters.Len()
}

// Cleanup drops letters older than the retention time.
// Returns the number reclaimed.
func (q *Queue) Cleanup() int {
	cutoff := time.Now().Add(-q.config.RetentionTime)

	q.mu.Lock()
	removed := q.letters.PopBefore(cutoff)
	q.mu.Unlock()

	for _, item := range removed {
		q.totalDropped.Add(1)
		metrics.RecordDLQDrop(item.Value.Category.String())
	}
	return len(removed)
}

// GetStats returns a snapshot of queue statistics and refreshes the gauges.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	items := q.letters.All()
	q.mu.Unlock()

	stats := Stats{
		TotalEntries:      int64(len(items)),
		TotalAdded:        q.totalAdded.Load(),
		TotalRemoved:      q.totalRemoved.Load(),
		TotalRetries:      q.totalRetries.Load(),
		TotalDropped:      q.totalDropped.Load(),
		TotalFailed:       q.totalFailed.Load(),
		EntriesByCategory: make(map[ErrorCategory]int64),
	}

	for _, item := range items {
		letter := item.Value
		stats.EntriesByCategory[letter.Category]++

		if stats.OldestEntry.IsZero() || letter.EnqueuedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = letter.EnqueuedAt
		}
		if stats.NewestEntry.IsZero() || letter.EnqueuedAt.After(stats.NewestEntry) {
			stats.NewestEntry = letter.EnqueuedAt
		}
	}

	oldestAge := float64(0)
	if !stats.OldestEntry.IsZero() {
		oldestAge = time.Since(stats.OldestEntry).Seconds()
	}
	metrics.UpdateDLQGauges(stats.TotalEntries, oldestAge)

	return stats
}

// backoff computes the redelivery delay for the given attempt count,
// exponential with jitter, capped at MaxBackoff.
func (q *Queue) backoff(attempts int) time.Duration {
	d := float64(q.config.InitialBackoff) * math.Pow(q.config.BackoffMultiplier, float64(attempts-1))
	if d > float64(q.config.MaxBackoff) {
		d = float64(q.config.MaxBackoff)
	}

	q.randMu.Lock()
	jitter := d * q.config.JitterFraction * (q.rng.Float64()*2 - 1)
	q.randMu.Unlock()

	return time.Duration(d + jitter)
}
