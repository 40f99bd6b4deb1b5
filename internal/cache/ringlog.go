// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package cache

import "sync"

// RingLog is a fixed-capacity circular buffer. Once full, each Push
// overwrites the oldest element. Elements are never mutated after insertion;
// readers receive copies of the stored values.
type RingLog[T any] struct {
	mu          sync.RWMutex
	buf         []T
	next        int // index the next Push writes to
	count       int // number of live elements, grows to len(buf) and stays
	overwritten int64
}

// NewRingLog creates a ring log holding at most capacity elements.
// A non-positive capacity defaults to 1000.
func NewRingLog[T any](capacity int) *RingLog[T] {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingLog[T]{
		buf: make([]T, capacity),
	}
}

// Push appends an element, overwriting the oldest when the buffer is full.
func (r *RingLog[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == len(r.buf) {
		r.overwritten++
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Recent returns the last k elements in chronological order (oldest of the
// selection first). If k exceeds the live count, all elements are returned.
func (r *RingLog[T]) Recent(k int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if k <= 0 {
		return nil
	}
	if k > r.count {
		k = r.count
	}

	out := make([]T, k)
	// The newest element sits just before next; walk back k slots.
	start := r.next - k
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < k; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Snapshot returns all live elements in chronological order.
func (r *RingLog[T]) Snapshot() []T {
	r.mu.RLock()
	k := r.count
	r.mu.RUnlock()
	return r.Recent(k)
}

// Len returns the number of live elements.
func (r *RingLog[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *RingLog[T]) Cap() int {
	return len(r.buf)
}

// Overwritten returns how many elements have been displaced by wraparound.
func (r *RingLog[T]) Overwritten() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overwritten
}
