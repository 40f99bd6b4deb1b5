// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
)

// LoopService runs a housekeeping function on a fixed interval until the
// context ends. A panicking tick is surfaced as an error so the tree
// restarts the loop with backoff; a tick error is logged and the loop
// keeps going.
type LoopService struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context) error
}

// NewLoopService wraps one periodic maintenance function.
func NewLoopService(name string, interval time.Duration, tick func(ctx context.Context) error) *LoopService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LoopService{name: name, interval: interval, tick: tick}
}

// Serve implements suture.Service.
func (s *LoopService) Serve(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", s.name, rec)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("maintenance tick failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *LoopService) String() string { return s.name }

// HTTPService runs an http.Server under supervision, shutting it down
// gracefully when the context is canceled.
type HTTPService struct {
	name            string
	server          *http.Server
	shutdownTimeout time.Duration
}

// NewHTTPService wraps a configured server. The shutdown timeout bounds
// how long in-flight requests get to finish.
func NewHTTPService(name string, server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. ListenAndServe blocks in a goroutine;
// context cancellation triggers graceful shutdown.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s failed: %w", s.name, err)
		}
		return nil

	case <-ctx.Done():
		// The serve context is gone; shutdown needs its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s shutdown failed: %w", s.name, err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's event log.
func (s *HTTPService) String() string { return s.name }
