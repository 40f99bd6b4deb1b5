// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package authz

import (
	"net/http"

	"github.com/hclerval/galvanic/internal/auth"
	"github.com/hclerval/galvanic/internal/logging"
)

// Middleware enforces role-based access after authentication. An identity
// without a role is treated as viewer.
func Middleware(e *Enforcer) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			role := "viewer"
			if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Role != "" {
				role = identity.Role
			}

			allowed, err := e.Allow(role, r.URL.Path, r.Method)
			if err != nil {
				logging.Error().Err(err).Str("role", role).Str("path", r.URL.Path).Msg("authorization check failed")
				writeForbidden(w)
				return
			}
			if !allowed {
				logging.Debug().
					Str("role", role).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("request denied by policy")
				writeForbidden(w)
				return
			}
			next(w, r)
		}
	}
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"success":false,"error":"forbidden"}`))
}
