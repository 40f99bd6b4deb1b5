// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/doctor"
	"github.com/hclerval/galvanic/internal/validation"
)

// SpawnDoctorRequest is the POST /doctors body.
type SpawnDoctorRequest struct {
	Specialization string            `json:"specialization" validate:"omitempty,max=64"`
	Config         map[string]string `json:"config" validate:"omitempty,max=32"`
}

// KillRequest carries an optional reason for kill endpoints.
type KillRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// DoctorsList lists supervisor children.
//
// @Summary List doctors
// @Tags Doctors
// @Produce json
// @Success 200 {object} APIResponse "Supervisor children"
// @Router /doctors [get]
func (s *HubServer) DoctorsList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"doctors": s.deps.Doctors.List(),
	})
}

// DoctorGet returns one supervisor child.
//
// @Summary Get a doctor
// @Tags Doctors
// @Produce json
// @Param id path string true "Doctor id"
// @Success 200 {object} APIResponse "Supervisor child"
// @Failure 404 {object} APIResponse "No such doctor"
// @Router /doctors/{id} [get]
func (s *HubServer) DoctorGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	info, ok := s.deps.Doctors.Get(id)
	if !ok {
		rw.NotFound("no such doctor: " + id)
		return
	}
	rw.Success(map[string]interface{}{"doctor": info})
}

// DoctorsSpawn starts one supervisor child.
//
// @Summary Spawn a doctor
// @Description Starts a supervisor child with an optional specialization and config map, mirroring the doctor.spawn wire verb.
// @Tags Doctors
// @Accept json
// @Produce json
// @Param request body SpawnDoctorRequest false "Spawn parameters"
// @Success 201 {object} APIResponse "Child spawned"
// @Failure 400 {object} APIResponse "Invalid body"
// @Failure 409 {object} APIResponse "Doctor limit reached"
// @Router /doctors [post]
func (s *HubServer) DoctorsSpawn(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SpawnDoctorRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid JSON body: " + err.Error())
			return
		}
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	info, err := s.deps.Doctors.Spawn(req.Specialization, req.Config)
	if err != nil {
		if errors.Is(err, doctor.ErrMaxChildren) {
			rw.Conflict(err.Error())
			return
		}
		rw.InternalError(err.Error())
		return
	}
	rw.Created(map[string]interface{}{"doctor": info})
}

// DoctorKill terminates one supervisor child.
//
// @Summary Kill a doctor
// @Description SIGTERM, grace window, SIGKILL. The death notice is broadcast when the process exits.
// @Tags Doctors
// @Accept json
// @Produce json
// @Param id path string true "Doctor id"
// @Param request body KillRequest false "Optional reason"
// @Success 202 {object} APIResponse "Kill signaled"
// @Failure 404 {object} APIResponse "No such doctor"
// @Router /doctors/{id}/kill [post]
func (s *HubServer) DoctorKill(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	reason := killReason(r)
	if err := s.deps.Doctors.Kill(id, reason); err != nil {
		rw.NotFound(err.Error())
		return
	}
	rw.Accepted(map[string]interface{}{"killing": id, "reason": reason})
}

// DoctorsKillAll terminates every supervisor child.
//
// @Summary Kill all doctors
// @Tags Doctors
// @Accept json
// @Produce json
// @Param request body KillRequest false "Optional reason"
// @Success 202 {object} APIResponse "Kills signaled"
// @Router /doctors/kill-all [post]
func (s *HubServer) DoctorsKillAll(w http.ResponseWriter, r *http.Request) {
	reason := killReason(r)
	count := s.deps.Doctors.KillAll(reason)
	NewResponseWriter(w, r).Accepted(map[string]interface{}{
		"killing": count,
		"reason":  reason,
	})
}

// killReason reads the optional reason body, defaulting to "api request".
func killReason(r *http.Request) string {
	var req KillRequest
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		return "api request"
	}
	return req.Reason
}
