// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package main is the entry point for the igor worker face.
//
// An igor connects to the bridge hub over WebSocket, accepts test plans,
// and drives an executor (frank) through them step by step: sequential
// execution with retry and backoff, selector memory from past runs,
// helper-tool recovery, and lightning escalation when a plan keeps
// failing. It also manages a local pool of executor processes and can
// spawn sibling worker faces for parallel routes.
//
// The process runs under a supervision tree: the hub session reconnects
// with backoff when the connection dies, the experience ledger compacts
// itself in the background, and the HTTP control surface shuts down
// gracefully on SIGINT/SIGTERM.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/config"
	"github.com/hclerval/galvanic/internal/experience"
	"github.com/hclerval/galvanic/internal/igor"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/supervisor"
)

func main() {
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
		Str("component", cfg.Igor.ComponentID).
		Str("bridge_url", cfg.Igor.BridgeURL).
		Str("addr", cfg.Igor.ListenAddr()).
		Msg("Starting igor worker face")

	// Experience ledger: selector memory persists across runs when a path
	// is configured, otherwise it lives and dies with the process.
	var ledger *experience.Store
	if cfg.Igor.ExperiencePath != "" {
		ledger, err = experience.Open(cfg.Igor.ExperiencePath)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Igor.ExperiencePath).Msg("Failed to open experience ledger")
		}
		logging.Info().Str("path", cfg.Igor.ExperiencePath).Msg("Experience ledger opened")
	} else {
		ledger, err = experience.OpenInMemory()
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open in-memory experience ledger")
		}
		logging.Info().Msg("Experience ledger is in-memory - selector memory will not survive restarts")
	}

	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	pending := igor.NewPendingMap()

	var thinker igor.Thinker
	if cfg.Igor.LightningEndpoint != "" {
		thinker = &httpThinker{endpoint: cfg.Igor.LightningEndpoint, client: &http.Client{Timeout: 60 * time.Second}}
		logging.Info().Str("endpoint", cfg.Igor.LightningEndpoint).Msg("Lightning thinker configured")
	} else {
		logging.Info().Msg("No lightning endpoint configured - escalation runs without a thinker")
	}
	lightning := igor.NewLightning(cfg.Igor.LightningAutoThreshold, thinker)

	client := igor.NewClient(igor.ClientConfig{
		URL:               cfg.Igor.BridgeURL,
		Component:         models.ComponentID(cfg.Igor.ComponentID),
		Version:           config.Version,
		AuthToken:         cfg.Igor.BridgeToken,
		SigningSecret:     []byte(cfg.Bridge.SigningSecret),
		HeartbeatInterval: cfg.Bridge.HeartbeatInterval(),
	})

	engine := igor.NewEngine(igor.EngineConfig{
		Component:      models.ComponentID(cfg.Igor.ComponentID),
		Executor:       models.ComponentID(cfg.Igor.ExecutorTarget),
		StepTimeout:    cfg.Igor.StepTimeout(),
		DefaultRetries: 2,
		ToolCacheTTL:   cfg.Igor.ToolCacheTTL(),
	}, client, pending, breakers, lightning, ledger)
	engine.Attach(client)

	pool := igor.NewPool(igor.PoolConfig{
		Binary:    cfg.Igor.FrankBinary,
		HubURL:    cfg.Igor.BridgeURL,
		MaxFranks: cfg.Igor.FrankPoolSize,
	}, client)
	pool.AttachPool(client, engine)

	siblings := igor.NewSiblings(igor.SiblingConfig{
		Binary:   cfg.Igor.WorkerBinary,
		HubURL:   cfg.Igor.BridgeURL,
		BasePort: cfg.Igor.FrankBasePort,
	}, client)
	siblings.AttachSiblings(client, engine)

	surface := igor.NewHTTPServer(engine, client, pool, siblings, breakers)
	server := &http.Server{
		Addr:              cfg.Igor.ListenAddr(),
		Handler:           surface.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree("igor", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Store layer: pending-request expiry and ledger compaction.
	tree.AddStoreService(supervisor.NewLoopService("pending-sweep", 30*time.Second, func(context.Context) error {
		if n := pending.Sweep(); n > 0 {
			logging.Debug().Int("expired", n).Msg("Expired pending requests swept")
		}
		return nil
	}))
	tree.AddStoreService(supervisor.NewLoopService("ledger-gc", 5*time.Minute, func(context.Context) error {
		return ledger.RunGC()
	}))

	// Transport layer: the hub session. A dropped connection surfaces as a
	// Serve error and the tree redials with backoff.
	tree.AddTransportService(client)

	// API layer.
	tree.AddAPIService(supervisor.NewHTTPService("igor-http", server, 10*time.Second))
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

	// Child processes first, then the ledger.
	if n := pool.KillAll(); n > 0 {
		logging.Info().Int("killed", n).Msg("Frank executors terminated")
	}
	for _, sib := range siblings.List() {
		if err := siblings.Kill(sib.ID); err != nil {
			logging.Warn().Err(err).Str("id", sib.ID).Msg("Failed to kill sibling")
		}
	}
	if err := ledger.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing experience ledger")
	}

	logging.Info().Msg("Igor stopped gracefully")
}

// httpThinker escalates prompts to an external reasoning endpoint. The
// endpoint receives {"prompt": ...} and answers {"text": ...}; a plain
// text body is accepted as a fallback.
type httpThinker struct {
	endpoint string
	client   *http.Client
}

func (t *httpThinker) Think(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thinker endpoint returned %d", resp.StatusCode)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Text != "" {
		return parsed.Text, nil
	}
	return string(raw), nil
}
