// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package report

import (
	"errors"
	"time"

	"github.com/hclerval/galvanic/internal/bridge"
	"github.com/hclerval/galvanic/internal/models"
)

// ErrMissingPlanID rejects report submissions without a plan id.
var ErrMissingPlanID = errors.New("report requires planId")

// Attach installs the report.submit and screenshot.submit verbs on the
// router.
func Attach(s *Store, r *bridge.Router) {
	r.Inline(models.TypeReportSubmit, func(connID string, msg *models.Message) {
		rep, err := FromPayload(msg.Payload, msg.Source)
		if err != nil {
			r.Reply(connID, models.NewErrorMessage(msg.Source, err.Error()))
			return
		}
		s.Add(rep)
	})

	r.Inline(models.TypeScreenshotSubmit, func(connID string, msg *models.Message) {
		planID, _ := msg.Payload["planId"].(string)
		encoded, _ := msg.Payload["data"].(string)
		stepIndex, _ := models.NumberField(msg.Payload, "stepIndex")
		if planID == "" || encoded == "" {
			r.Reply(connID, models.NewErrorMessage(msg.Source, "screenshot requires planId and data"))
			return
		}
		if _, err := s.StoreScreenshot(planID, int(stepIndex), encoded, msg.Source); err != nil {
			r.Reply(connID, models.NewErrorMessage(msg.Source, err.Error()))
		}
	})
}

// FromPayload builds a report from a report.submit payload. planId and
// kind are required; unknown kinds are stored as-is.
func FromPayload(payload map[string]interface{}, source models.ComponentID) (*models.Report, error) {
	planID, _ := payload["planId"].(string)
	if planID == "" {
		return nil, ErrMissingPlanID
	}
	kind, _ := payload["kind"].(string)
	if kind == "" {
		kind = models.ReportKindStep
	}

	rep := models.NewReport(planID, kind)
	rep.Source = source
	if idx, ok := models.NumberField(payload, "stepIndex"); ok {
		rep.StepIndex = int(idx)
	}
	if success, ok := payload["success"].(bool); ok {
		rep.Success = success
	}
	if ms, ok := models.NumberField(payload, "durationMs"); ok {
		rep.Duration = time.Duration(ms) * time.Millisecond
	}
	if details, ok := payload["details"].(map[string]interface{}); ok {
		rep.Details = details
	}
	return rep, nil
}
