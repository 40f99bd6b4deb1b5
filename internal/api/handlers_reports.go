// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/report"
	"github.com/hclerval/galvanic/internal/validation"
)

// SubmitScreenshotRequest is the POST /screenshots body. Data is base64 PNG
// pixels.
type SubmitScreenshotRequest struct {
	PlanID    string `json:"planId" validate:"required,max=128"`
	StepIndex int    `json:"stepIndex" validate:"min=0"`
	Data      string `json:"data" validate:"required"`
}

// ReportsList returns the most recent reports.
//
// @Summary Recent reports
// @Tags Reports
// @Produce json
// @Param limit query int false "Maximum entries (default 100)"
// @Success 200 {object} APIResponse "Report window"
// @Router /reports [get]
func (s *HubServer) ReportsList(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r, 0)
	WriteSuccess(w, r, map[string]interface{}{
		"reports": s.deps.Reports.Recent(limit),
		"total":   s.deps.Reports.Len(),
	})
}

// ReportsForPlan returns every stored report for one plan.
//
// @Summary Reports for a plan
// @Tags Reports
// @Produce json
// @Param id path string true "Plan id"
// @Success 200 {object} APIResponse "Plan reports, oldest first"
// @Router /reports/plan/{id} [get]
func (s *HubServer) ReportsForPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	WriteSuccess(w, r, map[string]interface{}{
		"planId":  planID,
		"reports": s.deps.Reports.ForPlan(planID),
	})
}

// ReportsSummary aggregates one plan's reports into a pass/fail verdict.
//
// @Summary Plan summary
// @Description Step counts, total duration, screenshot count, and the pass/fail decision for one plan.
// @Tags Reports
// @Produce json
// @Param id path string true "Plan id"
// @Success 200 {object} APIResponse "Plan summary"
// @Router /reports/summary/{id} [get]
func (s *HubServer) ReportsSummary(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "id")
	WriteSuccess(w, r, map[string]interface{}{
		"summary": s.deps.Reports.Summary(planID),
	})
}

// ReportsSubmit stores a report submitted over HTTP, mirroring the
// report.submit wire verb.
//
// @Summary Submit a report
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body object true "Report payload (planId required)"
// @Success 201 {object} APIResponse "Report stored"
// @Failure 400 {object} APIResponse "Missing planId or invalid body"
// @Router /reports [post]
func (s *HubServer) ReportsSubmit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	rep, err := report.FromPayload(payload, sourceAPI)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	s.deps.Reports.Add(rep)
	rw.Created(map[string]interface{}{"report": rep})
}

// ScreenshotsSubmit decodes and stores a screenshot, mirroring the
// screenshot.submit wire verb.
//
// @Summary Submit a screenshot
// @Description Decodes base64 pixels, schedules the file write, and stores the synthetic screenshot report.
// @Tags Reports
// @Accept json
// @Produce json
// @Param request body SubmitScreenshotRequest true "Screenshot payload"
// @Success 201 {object} APIResponse "Screenshot stored"
// @Failure 400 {object} APIResponse "Invalid body or undecodable pixels"
// @Router /screenshots [post]
func (s *HubServer) ScreenshotsSubmit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SubmitScreenshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	rep, err := s.deps.Reports.StoreScreenshot(req.PlanID, req.StepIndex, req.Data, sourceAPI)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	rw.Created(map[string]interface{}{"report": rep})
}
