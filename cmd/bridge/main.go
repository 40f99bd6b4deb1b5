// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/hclerval/galvanic/docs" // Import generated swagger docs
	"github.com/hclerval/galvanic/internal/api"
	"github.com/hclerval/galvanic/internal/auth"
	"github.com/hclerval/galvanic/internal/authz"
	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/bridge"
	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/config"
	"github.com/hclerval/galvanic/internal/dlq"
	"github.com/hclerval/galvanic/internal/doctor"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/pressure"
	"github.com/hclerval/galvanic/internal/ratelimit"
	"github.com/hclerval/galvanic/internal/report"
	"github.com/hclerval/galvanic/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("version", config.Version).
		Str("addr", cfg.Bridge.ListenAddr()).
		Str("auth_mode", cfg.Bridge.AuthMode).
		Bool("signing", cfg.Bridge.RequireSigning).
		Msg("Starting bridge hub")

	// Hub state singletons. The registry and manager track live
	// connections; everything else hangs off the router.
	registry := bridge.NewRegistry()
	manager := bridge.NewManager(bridge.ManagerConfig{
		SendQueueSize:  cfg.Bridge.SendQueueSize,
		HealthInitial:  cfg.Bridge.HealthInitial,
		HealthFloor:    cfg.Bridge.HealthFloor,
		StaleThreshold: cfg.Bridge.StaleThreshold(),
		PingInterval:   cfg.Bridge.HeartbeatInterval(),
	}, registry)

	limiter := ratelimit.New(ratelimit.Config{
		Refill: cfg.Bridge.RateLimitRefill,
		Burst:  cfg.Bridge.RateLimitBurst,
	})
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	seen := cache.NewSeen(cfg.Bridge.SeenCacheSize, cfg.Bridge.SeenCacheTTL(), cfg.Bridge.SeenCacheTTL()/2)
	defer seen.Close()

	dlqCfg := dlq.DefaultConfig()
	dlqCfg.MaxAttempts = cfg.Bridge.DLQMaxRetries
	dlqCfg.MaxEntries = cfg.Bridge.DLQMaxSize
	letters, err := dlq.New(dlqCfg, func(letter dlq.Letter) {
		logging.Warn().
			Str("message_id", letter.Message.ID).
			Str("target", string(letter.Target)).
			Int("attempts", letter.Attempts).
			Msg("Message permanently undeliverable")
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create dead letter queue")
	}

	messageLog := cache.NewRingLog[models.Message](cfg.Bridge.MessageLogSize)
	monitor := pressure.NewMonitor(cfg.Bridge.MemoryWarningMB, cfg.Bridge.MemoryCriticalMB)

	router := bridge.NewRouter(bridge.RouterConfig{
		MaxMessageSize:       cfg.Bridge.MaxMessageSize,
		RequireSigning:       cfg.Bridge.RequireSigning,
		SigningSecret:        []byte(cfg.Bridge.SigningSecret),
		MinCompatibleVersion: cfg.Bridge.MinCompatibleVersion,
	}, manager, registry, limiter, breakers, seen, letters, messageLog, monitor)

	// Doctor supervision: children dial back into this hub's /ws.
	doctors := doctor.NewManager(doctor.Config{
		MaxChildren: cfg.Bridge.MaxDoctors,
		Binary:      cfg.Bridge.DoctorBinary,
		BasePort:    cfg.Bridge.DoctorBasePort,
		HubURL:      fmt.Sprintf("ws://%s/ws", cfg.Bridge.ListenAddr()),
	}, router)
	doctor.Attach(doctors, router)

	reports := report.NewStore(report.Config{
		MaxReports:     cfg.Bridge.ReportLogSize,
		ScreenshotsDir: cfg.Bridge.ScreenshotsDir,
	})
	report.Attach(reports, router)

	authn, err := auth.New(auth.Config{
		Mode:           auth.Mode(cfg.Bridge.AuthMode),
		Token:          cfg.Bridge.AuthToken,
		Username:       cfg.Bridge.AuthUsername,
		PasswordHash:   cfg.Bridge.AuthPasswordHash,
		JWTSecret:      cfg.Bridge.JWTSecret,
		SessionTimeout: 24 * time.Hour,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authentication")
	}
	switch authn.Mode() {
	case auth.ModeNone:
		logging.Warn().Msg("Authentication is DISABLED - all endpoints are publicly accessible")
		logging.Warn().Msg("AUTH_MODE=none belongs in local development only")
	case auth.ModeBasic:
		logging.Warn().Msg("Basic Auth transmits credentials with each request. Use HTTPS in production!")
	default:
		logging.Info().Str("mode", string(authn.Mode())).Msg("Authentication enabled")
	}

	var enforcer *authz.Enforcer
	if authn.Mode() == auth.ModeJWT {
		enforcer, err = authz.NewEnforcer("")
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize role enforcement")
		}
		logging.Info().Msg("Role enforcement enabled for admin routes")
	}

	transport := bridge.NewTransport(bridge.TransportConfig{
		MaxConnections: cfg.Bridge.MaxConnections,
		MaxMessageSize: cfg.Bridge.MaxMessageSize,
		PingInterval:   cfg.Bridge.HeartbeatInterval(),
		Authenticate:   auth.HandshakeAuth(cfg.Bridge.AuthToken),
	}, manager, router, limiter, monitor)

	// A kicked connection takes its rate limit bucket with it.
	manager.OnKick(func(connID string, components []models.ComponentID, reason string) {
		limiter.Remove(connID)
	})

	hub := api.NewHubServer(api.HubDeps{
		Registry:  registry,
		Manager:   manager,
		Router:    router,
		Letters:   letters,
		Breakers:  breakers,
		Limiter:   limiter,
		Monitor:   monitor,
		Seen:      seen,
		Log:       messageLog,
		Doctors:   doctors,
		Reports:   reports,
		Transport: transport,
		Auth:      authn,
		Enforcer:  enforcer,
	})

	server := &http.Server{
		Addr:              cfg.Bridge.ListenAddr(),
		Handler:           hub.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree("bridge", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Store layer: retention sweeps on the durable-ish state.
	tree.AddStoreService(supervisor.NewLoopService("dlq-cleanup", time.Minute, func(context.Context) error {
		if n := letters.Cleanup(); n > 0 {
			logging.Debug().Int("expired", n).Msg("Dead letter retention sweep")
		}
		return nil
	}))

	// Transport layer: connection and routing housekeeping.
	tree.AddTransportService(supervisor.NewLoopService("dlq-retry", 5*time.Second, func(context.Context) error {
		if n := router.RetryDeadLetters(); n > 0 {
			logging.Debug().Int("redelivered", n).Msg("Dead letter retry pass")
		}
		return nil
	}))
	tree.AddTransportService(supervisor.NewLoopService("stale-reaper", cfg.Bridge.HeartbeatInterval(), func(context.Context) error {
		if n := manager.ReapStale(); n > 0 {
			logging.Info().Int("reaped", n).Msg("Stale connections reaped")
		}
		return nil
	}))
	tree.AddTransportService(supervisor.NewLoopService("pressure-sampler", 10*time.Second, func(context.Context) error {
		_, err := monitor.Sample()
		return err
	}))
	tree.AddTransportService(supervisor.NewLoopService("limiter-cleanup", time.Minute, func(context.Context) error {
		limiter.CleanupIdle()
		return nil
	}))

	// API layer.
	tree.AddAPIService(supervisor.NewHTTPService("hub-http", server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Children first, then the connection drain, then the stores.
	if n := doctors.KillAll("hub shutting down"); n > 0 {
		logging.Info().Int("killed", n).Msg("Doctor children terminated")
	}
	if remaining := manager.Drain(cfg.Bridge.DrainTimeout()); remaining > 0 {
		logging.Warn().Int("remaining", remaining).Msg("Connections still open after drain timeout")
	}
	reports.Close()

	logging.Info().Msg("Bridge stopped gracefully")
}
