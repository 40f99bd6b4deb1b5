// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

/*
Package middleware provides HTTP middleware for the control surfaces.

The hub and worker-face routers compose these with the chi stack:

  - RequestID: UUID request tracking propagated through the logging context
  - PrometheusMetrics: request/response instrumentation
  - Compression: gzip for clients that accept it

RequestID runs outermost so every log line and metric a request produces
carries its id.

Usage Example:

	r.Get("/components",
	    middleware.RequestID(
	        middleware.PrometheusMetrics(
	            middleware.Compression(handler),
	        ),
	    ),
	)

Thread Safety:

All middleware here is safe for concurrent use: compression pools gzip
writers, request ids live in the immutable context, and the Prometheus
collectors are atomic.
*/
package middleware
