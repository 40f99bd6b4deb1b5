// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package report stores plan and step outcome reports and their
// screenshots.
//
// Reports live in a bounded in-memory ring with a plan-id index; evicted
// reports fall out of the index with them. Screenshot submissions decode
// base64 pixels and write them to disk off the submitting goroutine.
package report

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
)

// Config sizes the store.
type Config struct {
	// MaxReports bounds the ring; the oldest report is evicted on overflow.
	MaxReports int

	// ScreenshotsDir receives decoded screenshot files. Created on first
	// write.
	ScreenshotsDir string

	// WriteQueueSize bounds pending async screenshot writes.
	WriteQueueSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxReports:     1000,
		ScreenshotsDir: "screenshots",
		WriteQueueSize: 64,
	}
}

type pendingWrite struct {
	path string
	data []byte
}

// Store is the bounded report store.
type Store struct {
	cfg Config

	mu     sync.Mutex
	ring   *cache.RingLog[*models.Report]
	byPlan map[string][]string
	byID   map[string]*models.Report

	writes    chan pendingWrite
	closeOnce sync.Once
	done      chan struct{}
}

// NewStore creates the store and starts the screenshot writer.
func NewStore(cfg Config) *Store {
	if cfg.MaxReports <= 0 {
		cfg.MaxReports = 1000
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 64
	}
	s := &Store{
		cfg:    cfg,
		ring:   cache.NewRingLog[*models.Report](cfg.MaxReports),
		byPlan: make(map[string][]string),
		byID:   make(map[string]*models.Report),
		writes: make(chan pendingWrite, cfg.WriteQueueSize),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Close stops the screenshot writer after draining queued writes.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.writes) })
	<-s.done
}

// Add appends a report, evicting the oldest when the ring is full.
func (s *Store) Add(r *models.Report) {
	s.mu.Lock()
	before := s.ring.Overwritten()
	s.ring.Push(r)
	if s.ring.Overwritten() > before {
		s.compactLocked()
	}
	s.byID[r.ID] = r
	s.byPlan[r.PlanID] = append(s.byPlan[r.PlanID], r.ID)
	s.mu.Unlock()

	metrics.ReportsStored.WithLabelValues(r.Kind).Inc()
}

// compactLocked rebuilds the indexes from the ring after an eviction.
func (s *Store) compactLocked() {
	live := s.ring.Snapshot()
	s.byID = make(map[string]*models.Report, len(live))
	s.byPlan = make(map[string][]string, len(live))
	for _, r := range live {
		s.byID[r.ID] = r
		s.byPlan[r.PlanID] = append(s.byPlan[r.PlanID], r.ID)
	}
}

// Get returns one report by id.
func (s *Store) Get(id string) (*models.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	return r, ok
}

// Recent returns the most recent k reports, newest last.
func (s *Store) Recent(k int) []*models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Recent(k)
}

// ForPlan returns every stored report for a plan, oldest first.
func (s *Store) ForPlan(planID string) []*models.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byPlan[planID]
	out := make([]*models.Report, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of stored reports.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Len()
}

// Summary aggregates a plan's reports: step counts, total duration, and a
// pass/fail decision. A plan passes when it has steps and none failed.
func (s *Store) Summary(planID string) models.PlanSummary {
	reports := s.ForPlan(planID)

	summary := models.PlanSummary{PlanID: planID}
	for _, r := range reports {
		if summary.FirstReport.IsZero() || r.CreatedAt.Before(summary.FirstReport) {
			summary.FirstReport = r.CreatedAt
		}
		if r.CreatedAt.After(summary.LastReport) {
			summary.LastReport = r.CreatedAt
		}
		switch r.Kind {
		case models.ReportKindStep:
			summary.TotalSteps++
			if r.Success {
				summary.StepsPassed++
			} else {
				summary.StepsFailed++
			}
			summary.TotalDuration += r.Duration
		case models.ReportKindScreenshot:
			summary.Screenshots++
		}
	}
	summary.DurationMs = summary.TotalDuration.Milliseconds()
	summary.Passed = summary.TotalSteps > 0 && summary.StepsFailed == 0
	return summary
}

// StoreScreenshot decodes base64 pixels, schedules the file write, and
// returns the synthetic screenshot report referencing the path. The write
// happens off-caller; a full write queue drops the file but keeps the
// report.
func (s *Store) StoreScreenshot(planID string, stepIndex int, encoded string, source models.ComponentID) (*models.Report, error) {
	// The plan id becomes part of a file name under ScreenshotsDir; a
	// separator or dot segment would let a caller write elsewhere.
	if planID == "" || planID == "." || planID == ".." ||
		planID != filepath.Base(planID) || strings.ContainsAny(planID, `/\`) {
		return nil, fmt.Errorf("plan id %q is not a valid file name segment", planID)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	name := fmt.Sprintf("%s_step%d_%d.png", planID, stepIndex, time.Now().UnixMilli())
	path := filepath.Join(s.cfg.ScreenshotsDir, name)

	select {
	case s.writes <- pendingWrite{path: path, data: data}:
	default:
		logging.Warn().Str("path", path).Msg("screenshot write queue full, dropping file")
	}

	r := models.NewReport(planID, models.ReportKindScreenshot)
	r.StepIndex = stepIndex
	r.Success = true
	r.Path = path
	r.Source = source
	r.Details = map[string]interface{}{"bytes": len(data)}
	s.Add(r)

	metrics.ScreenshotsStored.Inc()
	return r, nil
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for w := range s.writes {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o750); err != nil {
			logging.Error().Err(err).Str("path", w.path).Msg("screenshot dir create failed")
			continue
		}
		if err := os.WriteFile(w.path, w.data, 0o640); err != nil {
			logging.Error().Err(err).Str("path", w.path).Msg("screenshot write failed")
			continue
		}
		logging.Debug().Str("path", w.path).Int("bytes", len(w.data)).Msg("screenshot written")
	}
}
