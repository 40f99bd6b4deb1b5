// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"testing"
	"time"

	"github.com/hclerval/galvanic/internal/models"
)

func TestPendingResolveDeliversOnce(t *testing.T) {
	p := NewPendingMap()
	ch := p.Register("req-1", time.Second)

	resp := models.NewMessage("frank-1", "igor-1", models.TypeBrowserClicked, nil)
	resp.CorrelationID = "req-1"
	if !p.Resolve(resp) {
		t.Fatal("first resolve should find the awaiter")
	}
	if p.Resolve(resp) {
		t.Fatal("second resolve must miss; entries are single-use")
	}

	select {
	case got := <-ch:
		if got.Type != models.TypeBrowserClicked {
			t.Fatalf("delivered type = %s", got.Type)
		}
	default:
		t.Fatal("response not delivered to awaiter channel")
	}
	if p.Len() != 0 {
		t.Fatalf("len = %d after resolve, want 0", p.Len())
	}
}

func TestPendingResolveUnknownCorrelation(t *testing.T) {
	p := NewPendingMap()
	resp := models.NewMessage("frank-1", "igor-1", models.TypeBrowserError, nil)
	resp.CorrelationID = "nobody-asked"
	if p.Resolve(resp) {
		t.Fatal("resolve with no registered awaiter should report false")
	}
}

func TestPendingCancel(t *testing.T) {
	p := NewPendingMap()
	p.Register("req-1", time.Second)
	p.Cancel("req-1")
	if p.Len() != 0 {
		t.Fatalf("len = %d after cancel, want 0", p.Len())
	}

	resp := models.NewMessage("frank-1", "igor-1", models.TypeBrowserClicked, nil)
	resp.CorrelationID = "req-1"
	if p.Resolve(resp) {
		t.Fatal("cancelled entry must not resolve")
	}
}

func TestPendingSweepExpiresStaleEntries(t *testing.T) {
	p := NewPendingMap()
	p.Register("old", 10*time.Millisecond)
	p.Register("fresh", time.Minute)

	// Entries expire at twice their timeout.
	time.Sleep(30 * time.Millisecond)
	if expired := p.Sweep(); expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}
	if p.Len() != 1 {
		t.Fatalf("len = %d after sweep, want 1", p.Len())
	}
}
