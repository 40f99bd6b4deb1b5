// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/models"
)

// registration binds a component id to its live connection.
type registration struct {
	connID       string
	version      string
	registeredAt time.Time
}

// ComponentInfo is a point-in-time view of one registration.
type ComponentInfo struct {
	Component    models.ComponentID `json:"component"`
	ConnID       string             `json:"connId"`
	Version      string             `json:"version"`
	RegisteredAt time.Time          `json:"registeredAt"`
}

// Registry is the component-id to connection mapping. At most one live
// connection per component id; a duplicate registration reports the prior
// connection so the caller can kick it.
type Registry struct {
	mu          sync.RWMutex
	byComponent map[models.ComponentID]registration
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{byComponent: make(map[models.ComponentID]registration)}
}

// Register records the component on connID. Returns the connection id the
// component was previously registered on, if any and different.
func (r *Registry) Register(component models.ComponentID, connID, version string) (prior string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byComponent[component]; ok && old.connID != connID {
		prior, replaced = old.connID, true
	}
	r.byComponent[component] = registration{
		connID:       connID,
		version:      version,
		registeredAt: time.Now(),
	}
	return prior, replaced
}

// Resolve returns the connection id serving a component.
func (r *Registry) Resolve(component models.ComponentID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byComponent[component]
	return reg.connID, ok
}

// UnregisterConn removes every registration referencing connID and returns
// the component ids that were cleared.
func (r *Registry) UnregisterConn(connID string) []models.ComponentID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared []models.ComponentID
	for component, reg := range r.byComponent {
		if reg.connID == connID {
			delete(r.byComponent, component)
			cleared = append(cleared, component)
		}
	}
	return cleared
}

// Components lists registrations sorted by component id for stable output.
func (r *Registry) Components() []ComponentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ComponentInfo, 0, len(r.byComponent))
	for component, reg := range r.byComponent {
		out = append(out, ComponentInfo{
			Component:    component,
			ConnID:       reg.connID,
			Version:      reg.version,
			RegisteredAt: reg.registeredAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byComponent)
}
