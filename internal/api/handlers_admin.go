// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AdminKick force-disconnects one connection.
//
// @Summary Kick a connection
// @Description Closes the socket and clears its registry entries. The id is the connection id from /components.
// @Tags Admin
// @Produce json
// @Param id path string true "Connection id"
// @Success 200 {object} APIResponse "Connection kicked"
// @Failure 404 {object} APIResponse "No such connection"
// @Router /admin/kick/{id} [post]
func (s *HubServer) AdminKick(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	found := false
	for _, conn := range s.deps.Manager.Snapshot() {
		if conn.ID == id {
			found = true
			break
		}
	}
	if !found {
		rw.NotFound("no such connection: " + id)
		return
	}

	s.deps.Manager.Kick(id, "admin")
	rw.Success(map[string]interface{}{"kicked": id})
}

// AdminCircuitReset forces one breaker closed.
//
// @Summary Reset a circuit breaker
// @Description Swaps in a fresh breaker for the target, forcing the circuit closed.
// @Tags Admin
// @Produce json
// @Param name path string true "Breaker target name"
// @Success 200 {object} APIResponse "Breaker reset"
// @Failure 404 {object} APIResponse "No breaker for target"
// @Router /admin/circuit/reset/{name} [post]
func (s *HubServer) AdminCircuitReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")

	if !s.deps.Breakers.Reset(name) {
		rw.NotFound("no breaker for target: " + name)
		return
	}
	rw.Success(map[string]interface{}{"reset": name})
}
