// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package dlq

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func testConfig() Config {
	return Config{
		MaxAttempts:    3,
		MaxEntries:     5,
		RetentionTime:  time.Hour,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     80 * time.Millisecond,
		RandomSeed:     1,
	}
}

func testMessage(id string) models.Message {
	return models.Message{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Source:    "doctor",
		Target:    "igor-1",
		Type:      "plan.submit",
	}
}

func TestEnqueueAndGet(t *testing.T) {
	q, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	letter, permanent := q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")
	if permanent {
		t.Fatal("first failure reported as permanent")
	}
	if letter.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", letter.Attempts)
	}
	if letter.Category != ErrorCategoryConnection {
		t.Fatalf("category = %v, want connection", letter.Category)
	}

	got, ok := q.Get("m1", "igor-1")
	if !ok || got.Message.ID != "m1" {
		t.Fatalf("Get returned %+v, %v", got, ok)
	}
	if _, ok := q.Get("m1", "igor-2"); ok {
		t.Fatal("letter visible under the wrong target")
	}
}

func TestRepeatFailureAdvancesAttempts(t *testing.T) {
	q, _ := New(testConfig(), nil)
	msg := testMessage("m1")

	q.Enqueue(msg, "igor-1", "Target not connected")
	letter, permanent := q.Enqueue(msg, "igor-1", "Send queue full")
	if permanent {
		t.Fatal("second failure reported as permanent")
	}
	if letter.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", letter.Attempts)
	}
	if letter.Reason != "Target not connected" || letter.LastReason != "Send queue full" {
		t.Fatalf("reasons = %q / %q", letter.Reason, letter.LastReason)
	}
	if q.Len() != 1 {
		t.Fatalf("len = %d, want 1 (same letter, not a new one)", q.Len())
	}
}

func TestPermanentFailureFiresOnce(t *testing.T) {
	var failed []Letter
	q, _ := New(testConfig(), func(l Letter) { failed = append(failed, l) })
	msg := testMessage("m1")

	for i := 0; i < 3; i++ {
		_, permanent := q.Enqueue(msg, "igor-1", "Target not connected")
		if permanent != (i == 2) {
			t.Fatalf("attempt %d: permanent = %v", i+1, permanent)
		}
	}

	if len(failed) != 1 {
		t.Fatalf("permanent callback fired %d times, want 1", len(failed))
	}
	if failed[0].Attempts != 3 {
		t.Fatalf("failed letter attempts = %d, want 3", failed[0].Attempts)
	}
	if q.Len() != 0 {
		t.Fatal("permanently failed letter still queued")
	}

	// A fresh failure for the same message starts a new letter.
	letter, permanent := q.Enqueue(msg, "igor-1", "Target not connected")
	if permanent || letter.Attempts != 1 {
		t.Fatalf("post-failure enqueue: attempts = %d, permanent = %v", letter.Attempts, permanent)
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	q, _ := New(testConfig(), nil)

	for i := 0; i < 6; i++ {
		q.Enqueue(testMessage(fmt.Sprintf("m%d", i)), "igor-1", "Target not connected")
	}

	if q.Len() != 5 {
		t.Fatalf("len = %d, want capped at 5", q.Len())
	}
	if _, ok := q.Get("m0", "igor-1"); ok {
		t.Fatal("oldest letter survived overflow")
	}
	if _, ok := q.Get("m5", "igor-1"); !ok {
		t.Fatal("newest letter missing")
	}
	if stats := q.GetStats(); stats.TotalDropped != 1 {
		t.Fatalf("dropped = %d, want 1", stats.TotalDropped)
	}
}

func TestPendingRetriesHonorsBackoff(t *testing.T) {
	q, _ := New(testConfig(), nil)
	q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")

	if pending := q.PendingRetries(); len(pending) != 0 {
		t.Fatalf("letter eligible before its backoff elapsed: %d", len(pending))
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(q.PendingRetries()) == 1 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("letter never became eligible for retry")
}

func TestRemove(t *testing.T) {
	q, _ := New(testConfig(), nil)
	q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")

	if !q.Remove("m1", "igor-1") {
		t.Fatal("Remove missed an existing letter")
	}
	if q.Remove("m1", "igor-1") {
		t.Fatal("Remove found an already-removed letter")
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d, want 0", q.Len())
	}
}

func TestCleanupByRetention(t *testing.T) {
	cfg := testConfig()
	cfg.RetentionTime = 20 * time.Millisecond
	q, _ := New(cfg, nil)

	q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")
	time.Sleep(30 * time.Millisecond)
	q.Enqueue(testMessage("m2"), "igor-1", "Target not connected")

	if n := q.Cleanup(); n != 1 {
		t.Fatalf("cleaned %d letters, want 1", n)
	}
	if _, ok := q.Get("m2", "igor-1"); !ok {
		t.Fatal("fresh letter reclaimed")
	}
}

func TestLettersFor(t *testing.T) {
	q, _ := New(testConfig(), nil)
	q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")
	q.Enqueue(testMessage("m2"), "igor-2", "Circuit breaker open")
	q.Enqueue(testMessage("m3"), "igor-1", "Send queue full")

	letters := q.LettersFor("igor-1")
	if len(letters) != 2 {
		t.Fatalf("letters for igor-1 = %d, want 2", len(letters))
	}
	for _, l := range letters {
		if l.Target != "igor-1" {
			t.Fatalf("stray target %q", l.Target)
		}
	}
}

func TestBackoffGrowthAndCap(t *testing.T) {
	cfg := testConfig()
	cfg.JitterFraction = 0.0001
	q, _ := New(cfg, nil)

	prev := time.Duration(0)
	for attempts := 1; attempts <= 6; attempts++ {
		d := q.backoff(attempts)
		if d < prev {
			t.Fatalf("backoff shrank at attempt %d: %v < %v", attempts, d, prev)
		}
		if d > cfg.MaxBackoff+cfg.MaxBackoff/10 {
			t.Fatalf("backoff %v exceeds cap %v", d, cfg.MaxBackoff)
		}
		prev = d
	}
}

func TestCategorizeReason(t *testing.T) {
	tests := []struct {
		reason string
		want   ErrorCategory
	}{
		{"Target not connected", ErrorCategoryConnection},
		{"Circuit breaker open", ErrorCategoryCircuit},
		{"Send queue full", ErrorCategoryCapacity},
		{"request timeout", ErrorCategoryTimeout},
		{"invalid payload", ErrorCategoryValidation},
		{"mystery", ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			if got := CategorizeReason(tt.reason); got != tt.want {
				t.Fatalf("CategorizeReason(%q) = %v, want %v", tt.reason, got, tt.want)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	q, _ := New(testConfig(), nil)
	q.Enqueue(testMessage("m1"), "igor-1", "Target not connected")
	q.Enqueue(testMessage("m2"), "igor-1", "Circuit breaker open")
	q.Remove("m1", "igor-1")

	stats := q.GetStats()
	if stats.TotalEntries != 1 || stats.TotalAdded != 2 || stats.TotalRemoved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.EntriesByCategory[ErrorCategoryCircuit] != 1 {
		t.Fatalf("circuit entries = %d, want 1", stats.EntriesByCategory[ErrorCategoryCircuit])
	}
}
