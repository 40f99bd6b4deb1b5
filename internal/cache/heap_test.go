// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMinHeap_PushPopOrder(t *testing.T) {
	h := NewMinHeap[string](0)
	base := time.Now()

	h.Push("c", "third", base.Add(3*time.Second))
	h.Push("a", "first", base.Add(1*time.Second))
	h.Push("b", "second", base.Add(2*time.Second))

	want := []string{"first", "second", "third"}
	for i, w := range want {
		item := h.Pop()
		if item == nil {
			t.Fatalf("Pop() %d = nil", i)
		}
		if item.Value != w {
			t.Errorf("Pop() %d = %q, want %q", i, item.Value, w)
		}
	}

	if h.Pop() != nil {
		t.Error("Pop() on empty heap should return nil")
	}
}

func TestMinHeap_CapacityEviction(t *testing.T) {
	h := NewMinHeap[int](3)
	base := time.Now()

	for i := 1; i <= 3; i++ {
		if evicted := h.Push(fmt.Sprintf("k%d", i), i, base.Add(time.Duration(i)*time.Second)); evicted != nil {
			t.Errorf("Push %d evicted %v before capacity", i, evicted.Value)
		}
	}

	evicted := h.Push("k4", 4, base.Add(4*time.Second))
	if evicted == nil {
		t.Fatal("Push over capacity did not evict")
	}
	if evicted.Value != 1 {
		t.Errorf("evicted value = %d, want 1 (oldest)", evicted.Value)
	}
	if h.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.Len())
	}
}

func TestMinHeap_PushExistingKeyUpdates(t *testing.T) {
	h := NewMinHeap[int](2)
	base := time.Now()

	h.Push("k", 1, base)
	if evicted := h.Push("k", 2, base.Add(time.Second)); evicted != nil {
		t.Error("updating an existing key must not evict")
	}

	if h.Len() != 1 {
		t.Errorf("Len() = %d, want 1", h.Len())
	}
	if got := h.Get("k"); got == nil || got.Value != 2 {
		t.Errorf("Get(k) = %v, want value 2", got)
	}
}

func TestMinHeap_GetAndRemove(t *testing.T) {
	h := NewMinHeap[string](0)
	now := time.Now()

	h.Push("x", "payload", now)

	if got := h.Get("x"); got == nil || got.Value != "payload" {
		t.Errorf("Get(x) = %v, want payload", got)
	}
	if got := h.Get("missing"); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}

	removed := h.Remove("x")
	if removed == nil || removed.Value != "payload" {
		t.Errorf("Remove(x) = %v, want payload", removed)
	}
	if h.Remove("x") != nil {
		t.Error("second Remove(x) should return nil")
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestMinHeap_Update(t *testing.T) {
	h := NewMinHeap[string](0)
	base := time.Now()

	h.Push("a", "a", base.Add(1*time.Second))
	h.Push("b", "b", base.Add(2*time.Second))

	// Push "a" into the future; "b" becomes the minimum.
	if !h.Update("a", base.Add(10*time.Second)) {
		t.Fatal("Update(a) = false, want true")
	}
	if h.Update("missing", base) {
		t.Error("Update(missing) = true, want false")
	}

	if min := h.Peek(); min == nil || min.Key != "b" {
		t.Errorf("Peek() = %v, want key b", min)
	}
}

func TestMinHeap_PopBefore(t *testing.T) {
	h := NewMinHeap[int](0)
	base := time.Now()

	for i := 1; i <= 5; i++ {
		h.Push(fmt.Sprintf("k%d", i), i, base.Add(time.Duration(i)*time.Minute))
	}

	cutoff := base.Add(3*time.Minute + time.Second)
	popped := h.PopBefore(cutoff)

	if len(popped) != 3 {
		t.Fatalf("len(PopBefore) = %d, want 3", len(popped))
	}
	for i, item := range popped {
		if item.Value != i+1 {
			t.Errorf("PopBefore[%d] = %d, want %d (oldest first)", i, item.Value, i+1)
		}
	}
	if h.Len() != 2 {
		t.Errorf("Len() = %d, want 2 remaining", h.Len())
	}
}

func TestMinHeap_ClearAndAll(t *testing.T) {
	h := NewMinHeap[int](0)
	now := time.Now()

	h.Push("a", 1, now)
	h.Push("b", 2, now.Add(time.Second))

	if got := len(h.All()); got != 2 {
		t.Errorf("len(All()) = %d, want 2", got)
	}

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Clear", h.Len())
	}
	if h.Get("a") != nil {
		t.Error("Get(a) should return nil after Clear")
	}
}

func TestMinHeap_InterleavedOperations(t *testing.T) {
	h := NewMinHeap[int](0)
	base := time.Now()

	// Exercise removeAt paths at both ends and in the middle.
	for i := 0; i < 20; i++ {
		h.Push(fmt.Sprintf("k%d", i), i, base.Add(time.Duration(i)*time.Second))
	}
	h.Remove("k0")  // root
	h.Remove("k19") // last
	h.Remove("k7")  // middle

	prev := time.Time{}
	for item := h.Pop(); item != nil; item = h.Pop() {
		if item.Timestamp.Before(prev) {
			t.Fatalf("heap order violated: %v before %v", item.Timestamp, prev)
		}
		prev = item.Timestamp
	}
}

func BenchmarkMinHeapPush(b *testing.B) {
	h := NewMinHeap[int](10000)
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Push(fmt.Sprintf("k%d", i), i, now.Add(time.Duration(i)))
	}
}
