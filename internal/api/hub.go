// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/hclerval/galvanic/internal/auth"
	"github.com/hclerval/galvanic/internal/authz"
	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/bridge"
	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/dlq"
	"github.com/hclerval/galvanic/internal/doctor"
	"github.com/hclerval/galvanic/internal/middleware"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/pressure"
	"github.com/hclerval/galvanic/internal/ratelimit"
	"github.com/hclerval/galvanic/internal/report"
)

// HTTP-side rate limits per route class, separate from the WebSocket
// limiter. Health stays permissive for monitors; admin stays strict.
const (
	healthRequestsPerMinute = 1000
	readRequestsPerMinute   = 300
	adminRequestsPerMinute  = 60
)

// sourceAPI marks reports and screenshots submitted over HTTP rather than
// the wire.
const sourceAPI = models.ComponentID("api")

// HubDeps are the hub singletons the control surface reads and drives.
type HubDeps struct {
	Registry *bridge.Registry
	Manager  *bridge.Manager
	Router   *bridge.Router
	Letters  *dlq.Queue
	Breakers *breaker.Registry
	Limiter  *ratelimit.Limiter
	Monitor  *pressure.Monitor
	Seen     *cache.SeenCache
	Log      *cache.RingLog[models.Message]
	Doctors  *doctor.Manager
	Reports  *report.Store

	// Transport is the WebSocket ingress, mounted at /ws. It runs its own
	// handshake auth.
	Transport http.Handler

	Auth     *auth.Authenticator
	Enforcer *authz.Enforcer
}

// HubServer serves the hub control surface.
type HubServer struct {
	deps      HubDeps
	startedAt time.Time
}

// NewHubServer creates the control surface over the hub's live state.
func NewHubServer(deps HubDeps) *HubServer {
	return &HubServer{deps: deps, startedAt: time.Now()}
}

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Routes assembles the chi router for the hub.
func (s *HubServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Liveness surface: permissive limits, no auth. Monitors poll these.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(healthRequestsPerMinute, time.Minute))
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
		r.Get("/live", s.Live)
	})

	// Observability.
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
	))

	// WebSocket ingress. The transport authenticates the handshake itself.
	if s.deps.Transport != nil {
		r.Handle("/ws", s.deps.Transport)
	}

	// Read surface: hub state snapshots.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(readRequestsPerMinute, time.Minute))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(middleware.Compression))
		s.secure(r)

		r.Get("/components", s.Components)
		r.Get("/messages", s.Messages)
		r.Get("/dlq", s.DLQ)
		r.Get("/circuits", s.Circuits)
		r.Get("/rate-limits", s.RateLimits)
		r.Get("/debug/state", s.DebugState)
		r.Get("/doctors", s.DoctorsList)
		r.Get("/doctors/{id}", s.DoctorGet)
		r.Get("/reports", s.ReportsList)
		r.Get("/reports/plan/{id}", s.ReportsForPlan)
		r.Get("/reports/summary/{id}", s.ReportsSummary)
	})

	// Admin surface: mutations, strict limits.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(adminRequestsPerMinute, time.Minute))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		s.secure(r)

		r.Post("/admin/kick/{id}", s.AdminKick)
		r.Post("/admin/circuit/reset/{name}", s.AdminCircuitReset)
		r.Post("/doctors", s.DoctorsSpawn)
		r.Post("/doctors/{id}/kill", s.DoctorKill)
		r.Post("/doctors/kill-all", s.DoctorsKillAll)
		r.Post("/reports", s.ReportsSubmit)
		r.Post("/screenshots", s.ScreenshotsSubmit)
	})

	return r
}

// secure installs authentication and, under jwt mode, role enforcement.
func (s *HubServer) secure(r chi.Router) {
	if s.deps.Auth == nil {
		return
	}
	r.Use(chiMiddleware(s.deps.Auth.Middleware))
	if s.deps.Auth.Mode() == auth.ModeJWT && s.deps.Enforcer != nil {
		r.Use(chiMiddleware(authz.Middleware(s.deps.Enforcer)))
	}
}
