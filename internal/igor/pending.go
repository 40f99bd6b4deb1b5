// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package igor implements the worker face: the hub client, the plan/step
// execution engine with retry and escalation, the executor pool, and the
// worker-face HTTP control surface.
package igor

import (
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
)

// awaiter is a single-use response slot for one outstanding request.
type awaiter struct {
	ch      chan *models.Message
	created time.Time
	timeout time.Duration
}

// PendingMap correlates outbound request ids with their eventual responses.
// Each entry resolves at most once; the sweeper expires entries older than
// twice their timeout in case a response never arrives.
type PendingMap struct {
	mu      sync.Mutex
	entries map[string]*awaiter
}

// NewPendingMap creates an empty pending-response map.
func NewPendingMap() *PendingMap {
	return &PendingMap{entries: make(map[string]*awaiter)}
}

// Register creates a response slot for a request id. The returned channel
// receives the response, or nothing if the entry expires.
func (p *PendingMap) Register(id string, timeout time.Duration) <-chan *models.Message {
	a := &awaiter{
		ch:      make(chan *models.Message, 1),
		created: time.Now(),
		timeout: timeout,
	}
	p.mu.Lock()
	p.entries[id] = a
	n := len(p.entries)
	p.mu.Unlock()

	metrics.PendingCommands.Set(float64(n))
	return a.ch
}

// Resolve delivers a response to the awaiter registered under the message's
// correlation id. Returns false when no awaiter is waiting.
func (p *PendingMap) Resolve(msg *models.Message) bool {
	p.mu.Lock()
	a, ok := p.entries[msg.CorrelationID]
	if ok {
		delete(p.entries, msg.CorrelationID)
	}
	n := len(p.entries)
	p.mu.Unlock()
	if !ok {
		return false
	}

	metrics.PendingCommands.Set(float64(n))
	a.ch <- msg
	return true
}

// Cancel drops an awaiter without resolving it, used when the requester
// gave up on its own timeout.
func (p *PendingMap) Cancel(id string) {
	p.mu.Lock()
	delete(p.entries, id)
	n := len(p.entries)
	p.mu.Unlock()
	metrics.PendingCommands.Set(float64(n))
}

// Sweep expires entries older than twice their timeout and returns how many
// were abandoned.
func (p *PendingMap) Sweep() int {
	now := time.Now()

	p.mu.Lock()
	var expired []*awaiter
	for id, a := range p.entries {
		if now.Sub(a.created) > 2*a.timeout {
			delete(p.entries, id)
			expired = append(expired, a)
		}
	}
	n := len(p.entries)
	p.mu.Unlock()

	for range expired {
		metrics.PendingCommandsExpired.Inc()
	}
	metrics.PendingCommands.Set(float64(n))
	return len(expired)
}

// Len returns the number of outstanding requests.
func (p *PendingMap) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
