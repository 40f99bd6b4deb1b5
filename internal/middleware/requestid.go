// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hclerval/galvanic/internal/logging"
)

// RequestID tags each request with an id and echoes it in the X-Request-ID
// response header. An id assigned by an upstream proxy is kept. Handlers
// read the id back through the logging context, which also gains a fresh
// correlation id here.
func RequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := logging.ContextWithRequestID(r.Context(), id)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		next(w, r.WithContext(ctx))
	}
}
