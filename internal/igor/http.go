// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hclerval/galvanic/internal/api"
	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/middleware"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/validation"
)

// Local control surface rate limits, per client IP.
const (
	httpHealthPerMinute = 1000
	httpReadPerMinute   = 300
	httpAdminPerMinute  = 60
)

// HTTPServer is the worker face's local control surface: status, manual
// step execution, executor pool and sibling management, and the lightning
// controls.
type HTTPServer struct {
	engine    *Engine
	client    *Client
	pool      *Pool
	siblings  *Siblings
	breakers  *breaker.Registry
	startedAt time.Time
}

// NewHTTPServer binds the control surface to the worker face's parts.
func NewHTTPServer(engine *Engine, client *Client, pool *Pool, siblings *Siblings, breakers *breaker.Registry) *HTTPServer {
	return &HTTPServer{
		engine:    engine,
		client:    client,
		pool:      pool,
		siblings:  siblings,
		breakers:  breakers,
		startedAt: time.Now(),
	}
}

func httpChiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Routes builds the chi router for the control surface.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpChiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(httpHealthPerMinute, time.Minute))
		r.Get("/health", s.Health)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(httpReadPerMinute, time.Minute))
		r.Use(httpChiMiddleware(middleware.PrometheusMetrics))
		r.Use(httpChiMiddleware(middleware.Compression))

		r.Get("/status", s.Status)
		r.Get("/tools", s.Tools)
		r.Get("/toolbag", s.ToolBag)
		r.Get("/franks", s.FranksList)
		r.Get("/igors", s.SiblingsList)
		r.Get("/queue", s.QueueList)
		r.Get("/circuit", s.Circuit)
		r.Get("/lightning", s.LightningStatus)
		r.Get("/lightning/history", s.LightningHistory)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(httpAdminPerMinute, time.Minute))
		r.Use(httpChiMiddleware(middleware.PrometheusMetrics))

		r.Post("/plan", s.SubmitPlan)
		r.Post("/execute", s.ExecuteStep)
		r.Post("/tools/{name}/execute", s.ExecuteTool)
		r.Post("/franks", s.FrankSpawn)
		r.Post("/franks/{id}/kill", s.FrankKill)
		r.Post("/franks/{id}/execute", s.FrankExecute)
		r.Post("/igors", s.SiblingSpawn)
		r.Post("/igors/{id}/kill", s.SiblingKill)
		r.Post("/queue", s.QueueSubmit)
		r.Post("/circuit/reset", s.CircuitReset)
		r.Post("/lightning/strike", s.LightningStrike)
		r.Post("/lightning/powerdown", s.LightningPowerDown)
		r.Post("/lightning/think", s.LightningThink)
	})

	return r
}

// Health reports the worker face's condition and hub link.
//
// @Summary Worker health
// @Tags Worker
// @Produce json
// @Success 200 {object} api.APIResponse "Health snapshot"
// @Router /health [get]
func (s *HTTPServer) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.client.Connected() {
		status = "degraded"
	}
	api.WriteSuccess(w, r, map[string]interface{}{
		"status":    status,
		"uptimeMs":  time.Since(s.startedAt).Milliseconds(),
		"connected": s.client.Connected(),
	})
}

// Status is the full worker snapshot.
//
// @Summary Worker status
// @Description Hub link, plan execution state, lightning tier, executor pool, siblings, and queue depth in one response.
// @Tags Worker
// @Produce json
// @Success 200 {object} api.APIResponse "Worker status"
// @Router /status [get]
func (s *HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"component":   string(s.engine.cfg.Component),
		"executor":    string(s.engine.cfg.Executor),
		"connected":   s.client.Connected(),
		"executing":   s.engine.Executing(),
		"currentPlan": s.engine.CurrentPlan(),
		"lightning":   s.engine.Lightning().Status(),
		"franks":      s.pool.Len(),
		"siblings":    s.siblings.Len(),
		"queueDepth":  len(s.pool.Queue()),
		"uptimeMs":    time.Since(s.startedAt).Milliseconds(),
	})
}

// Tools lists the executor's helper tools.
//
// @Summary Helper tools
// @Tags Tools
// @Produce json
// @Success 200 {object} api.APIResponse "Executor tool catalog"
// @Failure 503 {object} api.APIResponse "Catalog unavailable"
// @Router /tools [get]
func (s *HTTPServer) Tools(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	tools, err := s.engine.catalog.Tools()
	if err != nil {
		rw.ServiceUnavailable(err.Error())
		return
	}
	rw.Success(map[string]interface{}{"tools": tools})
}

// ToolBag returns the executing plan's curated tool bag.
//
// @Summary Plan tool bag
// @Tags Tools
// @Produce json
// @Success 200 {object} api.APIResponse "Tool bag (empty when idle)"
// @Router /toolbag [get]
func (s *HTTPServer) ToolBag(w http.ResponseWriter, r *http.Request) {
	s.engine.mu.Lock()
	bag := []models.ToolDescriptor{}
	planID := ""
	if s.engine.current != nil {
		bag = append(bag, s.engine.current.ToolBag...)
		planID = s.engine.current.ID
	}
	s.engine.mu.Unlock()

	api.WriteSuccess(w, r, map[string]interface{}{
		"planId":  planID,
		"toolBag": bag,
	})
}

// ExecuteToolRequest is the POST /tools/{name}/execute body.
type ExecuteToolRequest struct {
	Params    map[string]interface{} `json:"params" validate:"omitempty,max=64"`
	TimeoutMs int                    `json:"timeoutMs" validate:"min=0,max=300000"`
}

// ExecuteTool invokes one helper tool on the executor and relays its
// response.
//
// @Summary Invoke a helper tool
// @Tags Tools
// @Accept json
// @Produce json
// @Param name path string true "Tool name"
// @Param request body ExecuteToolRequest false "Tool parameters"
// @Success 200 {object} api.APIResponse "Tool response payload"
// @Failure 502 {object} api.APIResponse "Executor unreachable or tool failed"
// @Router /tools/{name}/execute [post]
func (s *HTTPServer) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	name := chi.URLParam(r, "name")

	var req ExecuteToolRequest
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
	timeout := 10 * time.Second
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	payload := map[string]interface{}{"tool": name}
	for k, v := range req.Params {
		payload[k] = v
	}
	resp, err := s.engine.Request(models.TypeToolInvoke, payload, timeout)
	if err != nil {
		rw.Error(http.StatusBadGateway, api.ErrCodeServiceUnavailable, err.Error())
		return
	}
	if resp.Type == models.TypeToolError {
		reason, _ := resp.Payload["error"].(string)
		rw.Error(http.StatusBadGateway, api.ErrCodeInternalError, reason)
		return
	}
	rw.Success(map[string]interface{}{"tool": name, "result": resp.Payload})
}

// SubmitPlan accepts a plan over HTTP, mirroring the plan.submit wire verb.
// Lifecycle frames broadcast so every supervisor can follow along.
//
// @Summary Submit a plan
// @Tags Plans
// @Accept json
// @Produce json
// @Param request body object true "Plan payload (id and steps required)"
// @Success 202 {object} api.APIResponse "Plan accepted, executing"
// @Failure 400 {object} api.APIResponse "Malformed plan or disallowed verb"
// @Failure 409 {object} api.APIResponse "Already executing a plan"
// @Router /plan [post]
func (s *HTTPServer) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}

	plan, err := models.ParsePlan(payload)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verb, ok := disallowedVerb(plan); ok {
		rw.BadRequest("disallowed verb: " + verb)
		return
	}
	if plan.CorrelationID == "" {
		plan.CorrelationID = plan.ID
	}

	e := s.engine
	e.mu.Lock()
	if e.current != nil {
		executing := e.current.ID
		e.mu.Unlock()
		rw.Conflict("already executing plan " + executing)
		return
	}
	e.current = plan
	e.requester = models.Broadcast
	e.startedAt = time.Now()
	e.mu.Unlock()

	go e.runPlan(plan, models.Broadcast)

	rw.Accepted(map[string]interface{}{
		"planId": plan.ID,
		"steps":  len(plan.Steps),
	})
}

// ExecuteStepRequest is the POST /execute body: one ad-hoc step.
type ExecuteStepRequest struct {
	Action    string                 `json:"action" validate:"required,max=64"`
	Params    map[string]interface{} `json:"params" validate:"omitempty,max=64"`
	TimeoutMs int                    `json:"timeoutMs" validate:"min=0,max=300000"`
}

// ExecuteStep runs one step outside any plan. The step outcome rides the
// data payload; only transport-level problems produce error envelopes.
//
// @Summary Execute one step
// @Tags Plans
// @Accept json
// @Produce json
// @Param request body ExecuteStepRequest true "Step to run"
// @Success 200 {object} api.APIResponse "Step outcome"
// @Failure 400 {object} api.APIResponse "Unknown verb or invalid body"
// @Router /execute [post]
func (s *HTTPServer) ExecuteStep(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req ExecuteStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	step := models.Step{Action: req.Action, Params: req.Params}
	if req.TimeoutMs > 0 {
		step.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	plan := &models.Plan{ID: "adhoc-" + uuid.NewString(), Steps: []models.Step{step}}
	if verb, ok := disallowedVerb(plan); ok {
		rw.BadRequest("unknown verb: " + verb)
		return
	}

	began := time.Now()
	result, serr := s.engine.dispatch(plan, &plan.Steps[0])
	data := map[string]interface{}{
		"action":     req.Action,
		"success":    serr == nil,
		"durationMs": time.Since(began).Milliseconds(),
	}
	if serr != nil {
		data["error"] = serr.Reason
		data["code"] = serr.Code
		data["retryable"] = serr.Retryable
	} else if len(result) > 0 {
		data["result"] = result
	}
	rw.Success(data)
}

// FranksList lists the executor pool.
//
// @Summary List executors
// @Tags Franks
// @Produce json
// @Success 200 {object} api.APIResponse "Executor pool"
// @Router /franks [get]
func (s *HTTPServer) FranksList(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"franks": s.pool.List(),
		"total":  s.pool.Len(),
	})
}

// SpawnFrankRequest is the POST /franks body.
type SpawnFrankRequest struct {
	Capabilities []string `json:"capabilities" validate:"omitempty,max=32,dive,max=64"`
}

// FrankSpawn starts one executor process.
//
// @Summary Spawn an executor
// @Tags Franks
// @Accept json
// @Produce json
// @Param request body SpawnFrankRequest false "Capability tags"
// @Success 201 {object} api.APIResponse "Executor spawned"
// @Failure 409 {object} api.APIResponse "Executor limit reached"
// @Router /franks [post]
func (s *HTTPServer) FrankSpawn(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req SpawnFrankRequest
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

	info, err := s.pool.Spawn(req.Capabilities)
	if err != nil {
		if errors.Is(err, ErrMaxFranks) {
			rw.Conflict(err.Error())
			return
		}
		rw.InternalError(err.Error())
		return
	}
	rw.Created(map[string]interface{}{"frank": info})
}

// FrankKill terminates one executor.
//
// @Summary Kill an executor
// @Tags Franks
// @Produce json
// @Param id path string true "Executor id"
// @Success 202 {object} api.APIResponse "Kill signaled"
// @Failure 404 {object} api.APIResponse "No such executor"
// @Router /franks/{id}/kill [post]
func (s *HTTPServer) FrankKill(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	if err := s.pool.Kill(id); err != nil {
		rw.NotFound(err.Error())
		return
	}
	rw.Accepted(map[string]interface{}{"killing": id})
}

// FrankTaskRequest is the body for direct and queued task submission.
type FrankTaskRequest struct {
	Tool   string                 `json:"tool" validate:"required,max=64"`
	Params map[string]interface{} `json:"params" validate:"omitempty,max=64"`
}

// FrankExecute dispatches a task straight to one executor.
//
// @Summary Execute on an executor
// @Description Bypasses the queue: the named executor must exist and be idle.
// @Tags Franks
// @Accept json
// @Produce json
// @Param id path string true "Executor id"
// @Param request body FrankTaskRequest true "Task"
// @Success 202 {object} api.APIResponse "Task dispatched"
// @Failure 404 {object} api.APIResponse "No such executor"
// @Failure 409 {object} api.APIResponse "Executor is busy"
// @Router /franks/{id}/execute [post]
func (s *HTTPServer) FrankExecute(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	var req FrankTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	taskID, err := s.pool.Execute(id, req.Tool, req.Params)
	if err != nil {
		if errors.Is(err, ErrFrankNotFound) {
			rw.NotFound(err.Error())
			return
		}
		rw.Conflict(err.Error())
		return
	}
	rw.Accepted(map[string]interface{}{"taskId": taskID, "frank": id})
}

// QueueList returns the waiting tasks.
//
// @Summary Task queue
// @Tags Franks
// @Produce json
// @Success 200 {object} api.APIResponse "Waiting tasks, oldest first"
// @Router /queue [get]
func (s *HTTPServer) QueueList(w http.ResponseWriter, r *http.Request) {
	tasks := s.pool.Queue()
	api.WriteSuccess(w, r, map[string]interface{}{
		"tasks": tasks,
		"depth": len(tasks),
	})
}

// QueueSubmit enqueues a task for the next capable idle executor.
//
// @Summary Enqueue a task
// @Tags Franks
// @Accept json
// @Produce json
// @Param request body FrankTaskRequest true "Task"
// @Success 202 {object} api.APIResponse "Task queued"
// @Router /queue [post]
func (s *HTTPServer) QueueSubmit(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req FrankTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	taskID := s.pool.Submit(req.Tool, req.Params)
	rw.Accepted(map[string]interface{}{"taskId": taskID})
}

// SiblingsList lists route workers.
//
// @Summary List route workers
// @Tags Siblings
// @Produce json
// @Success 200 {object} api.APIResponse "Route workers"
// @Router /igors [get]
func (s *HTTPServer) SiblingsList(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"igors": s.siblings.List(),
		"total": s.siblings.Len(),
	})
}

// SpawnSiblingRequest is the POST /igors body.
type SpawnSiblingRequest struct {
	RouteID    string   `json:"routeId" validate:"required,max=64"`
	RouteName  string   `json:"routeName" validate:"omitempty,max=128"`
	Conditions []string `json:"conditions" validate:"omitempty,max=32,dive,max=128"`
}

// SiblingSpawn starts one route-specialized worker face.
//
// @Summary Spawn a route worker
// @Tags Siblings
// @Accept json
// @Produce json
// @Param request body SpawnSiblingRequest true "Route identity"
// @Success 201 {object} api.APIResponse "Route worker spawned"
// @Failure 409 {object} api.APIResponse "Sibling limit reached"
// @Router /igors [post]
func (s *HTTPServer) SiblingSpawn(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req SpawnSiblingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	info, err := s.siblings.Spawn(RouteSpec{
		ID:         req.RouteID,
		Name:       req.RouteName,
		Conditions: req.Conditions,
	})
	if err != nil {
		if errors.Is(err, ErrMaxSiblings) {
			rw.Conflict(err.Error())
			return
		}
		rw.InternalError(err.Error())
		return
	}
	rw.Created(map[string]interface{}{"igor": info})
}

// SiblingKill terminates one route worker.
//
// @Summary Kill a route worker
// @Tags Siblings
// @Produce json
// @Param id path string true "Sibling id"
// @Success 202 {object} api.APIResponse "Kill signaled"
// @Failure 404 {object} api.APIResponse "No such sibling"
// @Router /igors/{id}/kill [post]
func (s *HTTPServer) SiblingKill(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	if err := s.siblings.Kill(id); err != nil {
		rw.NotFound(err.Error())
		return
	}
	rw.Accepted(map[string]interface{}{"killing": id})
}

// Circuit returns the worker's circuit breaker state.
//
// @Summary Circuit breakers
// @Tags Circuits
// @Produce json
// @Success 200 {object} api.APIResponse "Breaker snapshot"
// @Router /circuit [get]
func (s *HTTPServer) Circuit(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"circuits": s.breakers.Snapshot(),
	})
}

// CircuitResetRequest is the POST /circuit/reset body. Name defaults to
// the executor target.
type CircuitResetRequest struct {
	Name string `json:"name" validate:"omitempty,max=128"`
}

// CircuitReset forces one breaker closed.
//
// @Summary Reset a circuit breaker
// @Tags Circuits
// @Accept json
// @Produce json
// @Param request body CircuitResetRequest false "Breaker name (defaults to executor)"
// @Success 200 {object} api.APIResponse "Breaker reset"
// @Failure 404 {object} api.APIResponse "No breaker for target"
// @Router /circuit/reset [post]
func (s *HTTPServer) CircuitReset(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req CircuitResetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid JSON body: " + err.Error())
			return
		}
	}
	name := req.Name
	if name == "" {
		name = string(s.engine.cfg.Executor)
	}

	if !s.breakers.Reset(name) {
		rw.NotFound("no breaker for target: " + name)
		return
	}
	rw.Success(map[string]interface{}{"reset": name})
}

// LightningStatus returns the escalation machine snapshot.
//
// @Summary Lightning status
// @Tags Lightning
// @Produce json
// @Success 200 {object} api.APIResponse "Escalation state"
// @Router /lightning [get]
func (s *HTTPServer) LightningStatus(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"status": s.engine.Lightning().Status(),
	})
}

// StrikeRequest carries the optional escalation reason.
type StrikeRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// LightningStrike escalates to claude mode.
//
// @Summary Strike
// @Tags Lightning
// @Accept json
// @Produce json
// @Param request body StrikeRequest false "Optional reason"
// @Success 200 {object} api.APIResponse "Escalated"
// @Router /lightning/strike [post]
func (s *HTTPServer) LightningStrike(w http.ResponseWriter, r *http.Request) {
	var req StrikeRequest
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "api request"
	}

	l := s.engine.Lightning()
	l.Strike(req.Reason)
	api.WriteSuccess(w, r, map[string]interface{}{"mode": string(l.Mode())})
}

// LightningPowerDown returns to dumb mode.
//
// @Summary Power down
// @Tags Lightning
// @Produce json
// @Success 200 {object} api.APIResponse "De-escalated"
// @Router /lightning/powerdown [post]
func (s *HTTPServer) LightningPowerDown(w http.ResponseWriter, r *http.Request) {
	l := s.engine.Lightning()
	l.PowerDown()
	api.WriteSuccess(w, r, map[string]interface{}{"mode": string(l.Mode())})
}

// ThinkRequest is the POST /lightning/think body.
type ThinkRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8192"`
}

// LightningThink consults the reasoning endpoint.
//
// @Summary Think
// @Tags Lightning
// @Accept json
// @Produce json
// @Param request body ThinkRequest true "Prompt"
// @Success 200 {object} api.APIResponse "Reasoning response"
// @Failure 503 {object} api.APIResponse "Reasoning endpoint failed"
// @Router /lightning/think [post]
func (s *HTTPServer) LightningThink(w http.ResponseWriter, r *http.Request) {
	rw := api.NewResponseWriter(w, r)

	var req ThinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body: " + err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	response, err := s.engine.Lightning().Think(ctx, req.Prompt)
	if err != nil {
		rw.ServiceUnavailable(err.Error())
		return
	}
	rw.Success(map[string]interface{}{"response": response})
}

// LightningHistory returns the retained reasoning exchanges.
//
// @Summary Thinking history
// @Tags Lightning
// @Produce json
// @Success 200 {object} api.APIResponse "Thoughts, oldest first"
// @Router /lightning/history [get]
func (s *HTTPServer) LightningHistory(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, r, map[string]interface{}{
		"history": s.engine.Lightning().History(),
	})
}
