// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package cache

import (
	"sync"
	"time"
)

// Item is a keyed heap element ordered by timestamp.
type Item[T any] struct {
	Key       string
	Value     T
	Timestamp time.Time
	index     int // position in the heap array, kept for O(log n) updates
}

// MinHeap is a timestamp-ordered min-heap with O(1) key lookup through a
// parallel map. The dead letter queue uses it to evict the oldest letter at
// capacity and to drop letters past their retention cutoff in one pass.
type MinHeap[T any] struct {
	mu     sync.RWMutex
	items  []*Item[T]
	byKey  map[string]*Item[T]
	maxLen int // 0 = unlimited
}

// NewMinHeap creates a heap that holds at most maxLen items (0 for unlimited).
func NewMinHeap[T any](maxLen int) *MinHeap[T] {
	return &MinHeap[T]{
		items:  make([]*Item[T], 0),
		byKey:  make(map[string]*Item[T]),
		maxLen: maxLen,
	}
}

// Push inserts or updates the item for key. When the heap is at capacity the
// oldest item is evicted and returned; otherwise Push returns nil.
func (h *MinHeap[T]) Push(key string, value T, timestamp time.Time) *Item[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.byKey[key]; ok {
		existing.Value = value
		existing.Timestamp = timestamp
		h.reorder(existing.index)
		return nil
	}

	item := &Item[T]{
		Key:       key,
		Value:     value,
		Timestamp: timestamp,
		index:     len(h.items),
	}
	h.items = append(h.items, item)
	h.byKey[key] = item
	h.siftUp(item.index)

	if h.maxLen > 0 && len(h.items) > h.maxLen {
		return h.popMin()
	}
	return nil
}

// Pop removes and returns the oldest item, or nil when empty.
func (h *MinHeap[T]) Pop() *Item[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.popMin()
}

// Peek returns the oldest item without removing it, or nil when empty.
func (h *MinHeap[T]) Peek() *Item[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Get returns the item for key without removing it, or nil when absent.
func (h *MinHeap[T]) Get(key string) *Item[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byKey[key]
}

// Remove removes and returns the item for key, or nil when absent.
func (h *MinHeap[T]) Remove(key string) *Item[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, ok := h.byKey[key]
	if !ok {
		return nil
	}
	return h.removeAt(item.index)
}

// Update rewrites the timestamp for key and restores heap order.
// Returns false when the key is absent.
func (h *MinHeap[T]) Update(key string, timestamp time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	item, ok := h.byKey[key]
	if !ok {
		return false
	}
	item.Timestamp = timestamp
	h.reorder(item.index)
	return true
}

// Len returns the number of items held.
func (h *MinHeap[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// PopBefore removes and returns every item with a timestamp before t,
// oldest first.
func (h *MinHeap[T]) PopBefore(t time.Time) []*Item[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Item[T]
	for len(h.items) > 0 && h.items[0].Timestamp.Before(t) {
		out = append(out, h.popMin())
	}
	return out
}

// Clear drops all items.
func (h *MinHeap[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = make([]*Item[T], 0)
	h.byKey = make(map[string]*Item[T])
}

// All returns every item in no particular order.
func (h *MinHeap[T]) All() []*Item[T] {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Item[T], len(h.items))
	copy(out, h.items)
	return out
}

// Internal operations; caller holds the lock.

func (h *MinHeap[T]) popMin() *Item[T] {
	if len(h.items) == 0 {
		return nil
	}
	return h.removeAt(0)
}

func (h *MinHeap[T]) removeAt(i int) *Item[T] {
	n := len(h.items) - 1
	item := h.items[i]

	delete(h.byKey, item.Key)

	if i == n {
		h.items = h.items[:n]
		return item
	}

	h.items[i] = h.items[n]
	h.items[i].index = i
	h.items = h.items[:n]
	h.reorder(i)

	return item
}

// reorder restores the heap property around index i after a timestamp change.
func (h *MinHeap[T]) reorder(i int) {
	if h.siftUp(i) {
		return
	}
	h.siftDown(i)
}

func (h *MinHeap[T]) siftUp(i int) bool {
	moved := false
	for i > 0 {
		parent := (i - 1) / 2
		if !h.items[i].Timestamp.Before(h.items[parent].Timestamp) {
			break
		}
		h.swap(i, parent)
		i = parent
		moved = true
	}
	return moved
}

func (h *MinHeap[T]) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && h.items[left].Timestamp.Before(h.items[smallest].Timestamp) {
			smallest = left
		}
		if right < n && h.items[right].Timestamp.Before(h.items[smallest].Timestamp) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.swap(i, smallest)
		i = smallest
	}
}

func (h *MinHeap[T]) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}
