// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"time"

	"github.com/google/uuid"
)

// Report kinds stored by the bridge's report store.
const (
	ReportKindStep       = "step"
	ReportKindPlan       = "plan"
	ReportKindScreenshot = "screenshot"
)

// Report is an append-only record describing a plan or step outcome, or a
// stored screenshot.
type Report struct {
	ID        string                 `json:"id"`
	PlanID    string                 `json:"planId"`
	Kind      string                 `json:"kind"`
	StepIndex int                    `json:"stepIndex,omitempty"`
	Success   bool                   `json:"success"`
	Duration  time.Duration          `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Source    ComponentID            `json:"source,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// NewReport constructs a report with a fresh id and timestamp.
func NewReport(planID, kind string) *Report {
	return &Report{
		ID:        uuid.New().String(),
		PlanID:    planID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// DurationMs exposes the duration for JSON in milliseconds.
func (r *Report) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// PlanSummary aggregates the stored reports for one plan.
type PlanSummary struct {
	PlanID        string        `json:"planId"`
	TotalSteps    int           `json:"totalSteps"`
	StepsPassed   int           `json:"stepsPassed"`
	StepsFailed   int           `json:"stepsFailed"`
	Screenshots   int           `json:"screenshots"`
	TotalDuration time.Duration `json:"-"`
	DurationMs    int64         `json:"durationMs"`
	Passed        bool          `json:"passed"`
	FirstReport   time.Time     `json:"firstReport"`
	LastReport    time.Time     `json:"lastReport"`
}
