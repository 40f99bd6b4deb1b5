// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/experience"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
)

// Backoff bounds for step retries.
const (
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// ErrBrowserTimeout fails a pending request whose response never arrived.
var ErrBrowserTimeout = errors.New("browserTimeout")

// Sender delivers messages toward the hub. *Client satisfies it; tests
// install a capture stub.
type Sender interface {
	Send(msg *models.Message) error
}

// stepError is the structured failure surfaced on step.failed frames.
type stepError struct {
	Code      string
	Reason    string
	Retryable bool
}

func (e *stepError) Error() string { return e.Reason }

// EngineConfig wires the execution engine to its peers.
type EngineConfig struct {
	// Component is this worker face; Executor is the browser-driving peer
	// all browser.* and tool.* requests go to.
	Component models.ComponentID
	Executor  models.ComponentID

	// StepTimeout bounds each executor round-trip when the step carries no
	// timeout of its own.
	StepTimeout time.Duration

	// DefaultRetries applies to steps that declare no retry budget.
	DefaultRetries int

	// ToolCacheTTL overrides the helper-tool catalog's cache lifetime.
	ToolCacheTTL time.Duration
}

// Engine executes submitted plans one at a time: sequential steps with
// retry, backoff, selector memory, helper-tool recovery, and escalation.
type Engine struct {
	cfg       EngineConfig
	send      Sender
	pending   *PendingMap
	breakers  *breaker.Registry
	lightning *Lightning
	ledger    *experience.Store
	catalog   *ToolCatalog

	mu        sync.Mutex
	current   *models.Plan
	requester models.ComponentID
	startedAt time.Time
	lastURL   string
}

// NewEngine creates an idle engine. ledger may be nil when the worker face
// runs without experience memory.
func NewEngine(cfg EngineConfig, send Sender, pending *PendingMap, breakers *breaker.Registry, lightning *Lightning, ledger *experience.Store) *Engine {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	if cfg.DefaultRetries < 0 {
		cfg.DefaultRetries = 0
	}
	e := &Engine{
		cfg:       cfg,
		send:      send,
		pending:   pending,
		breakers:  breakers,
		lightning: lightning,
		ledger:    ledger,
	}
	e.catalog = NewToolCatalog(e)
	e.catalog.TTL = cfg.ToolCacheTTL
	return e
}

// Lightning exposes the escalation machine for the control surfaces.
func (e *Engine) Lightning() *Lightning { return e.lightning }

// Executing reports whether a plan run is in flight.
func (e *Engine) Executing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// CurrentPlan returns the executing plan's id, or empty when idle.
func (e *Engine) CurrentPlan() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ""
	}
	return e.current.ID
}

// HandleSubmit adjudicates a plan.submit frame. Accepted plans execute
// asynchronously; every rejection case answers plan.rejected with a reason.
func (e *Engine) HandleSubmit(msg *models.Message) {
	reject := func(planID, reason string) {
		payload := map[string]interface{}{"reason": reason}
		if planID != "" {
			payload["planId"] = planID
		}
		e.reply(msg, models.TypePlanRejected, payload)
	}

	plan, err := models.ParsePlan(msg.Payload)
	if err != nil {
		reject("", err.Error())
		return
	}
	if verb, ok := disallowedVerb(plan); ok {
		reject(plan.ID, fmt.Sprintf("disallowed verb: %s", verb))
		return
	}
	if plan.CorrelationID == "" {
		plan.CorrelationID = msg.CorrelationID
	}

	e.mu.Lock()
	if e.current != nil {
		executing := e.current.ID
		e.mu.Unlock()
		reject(plan.ID, fmt.Sprintf("already executing plan %s", executing))
		return
	}
	e.current = plan
	e.requester = msg.Source
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.reply(msg, models.TypePlanAccepted, map[string]interface{}{
		"planId": plan.ID,
		"steps":  len(plan.Steps),
	})

	go e.runPlan(plan, msg.Source)
}

// HandleResponse resolves an executor response against the pending map.
func (e *Engine) HandleResponse(msg *models.Message) {
	if !e.pending.Resolve(msg) {
		logging.Debug().
			Str("type", msg.Type).
			Str("correlationId", msg.CorrelationID).
			Msg("response with no pending requester")
	}
}

// Request sends one frame to the executor and awaits the correlated
// response. Satisfies the tool catalog's Requester.
func (e *Engine) Request(msgType string, payload map[string]interface{}, timeout time.Duration) (*models.Message, error) {
	msg := models.NewMessage(e.cfg.Component, e.cfg.Executor, msgType, payload)
	msg.CorrelationID = msg.ID
	ch := e.pending.Register(msg.ID, timeout)

	if err := e.send.Send(msg); err != nil {
		e.pending.Cancel(msg.ID)
		return nil, err
	}
	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		e.pending.Cancel(msg.ID)
		return nil, ErrBrowserTimeout
	}
}

func (e *Engine) runPlan(plan *models.Plan, supervisor models.ComponentID) {
	metrics.PlansStarted.Inc()
	start := time.Now()
	logging.Info().Str("plan", plan.ID).Int("steps", len(plan.Steps)).Msg("plan started")

	success := true
	var failure string
	for i := range plan.Steps {
		if serr := e.runStep(plan, i, supervisor); serr != nil {
			success = false
			failure = serr.Reason
			break
		}
	}

	dur := time.Since(start)
	payload := map[string]interface{}{
		"planId":     plan.ID,
		"success":    success,
		"durationMs": dur.Milliseconds(),
	}
	outcome := "success"
	if !success {
		payload["error"] = failure
		outcome = "failure"
	}
	e.notify(supervisor, plan, models.TypePlanCompleted, payload)
	metrics.RecordPlanCompletion(outcome, dur)
	logging.Info().Str("plan", plan.ID).Bool("success", success).Dur("duration", dur).Msg("plan finished")

	e.mu.Lock()
	e.current = nil
	e.requester = ""
	e.mu.Unlock()
}

// runStep drives one step through its retry budget. nil means the step
// eventually succeeded.
func (e *Engine) runStep(plan *models.Plan, index int, supervisor models.ComponentID) *stepError {
	step := &plan.Steps[index]
	budget := step.Retries
	if budget == 0 {
		budget = e.cfg.DefaultRetries
	}

	for attempt := 0; ; attempt++ {
		e.notify(supervisor, plan, models.TypeStepStarted, map[string]interface{}{
			"planId":    plan.ID,
			"stepIndex": index,
			"action":    step.Action,
			"attempt":   attempt,
		})

		e.substituteSelector(step)
		began := time.Now()
		result, serr := e.dispatch(plan, step)
		took := time.Since(began)

		if serr == nil {
			e.lightning.RecordSuccess()
			e.recordSelectorOutcome(step, true)
			metrics.RecordStep(step.Action, "completed", took)
			payload := map[string]interface{}{
				"planId":     plan.ID,
				"stepIndex":  index,
				"action":     step.Action,
				"durationMs": took.Milliseconds(),
			}
			if len(result) > 0 {
				payload["result"] = result
			}
			e.notify(supervisor, plan, models.TypeStepCompleted, payload)
			return nil
		}

		e.recordSelectorOutcome(step, false)
		metrics.RecordStep(step.Action, "failed", took)
		struck := e.lightning.RecordFailure(serr.Reason)

		retrying := serr.Retryable && attempt < budget
		e.notify(supervisor, plan, models.TypeStepFailed, map[string]interface{}{
			"planId":    plan.ID,
			"stepIndex": index,
			"action":    step.Action,
			"error":     serr.Reason,
			"code":      serr.Code,
			"retryable": retrying,
		})
		if struck {
			e.notify(supervisor, plan, models.TypeIgorStruck, map[string]interface{}{
				"reason": serr.Reason,
				"mode":   string(e.lightning.Mode()),
			})
		}
		if !retrying {
			return serr
		}

		delay := backoffDelay(attempt)
		e.consultHelpers(step, serr)
		e.notify(supervisor, plan, models.TypeStepRetrying, map[string]interface{}{
			"planId":    plan.ID,
			"stepIndex": index,
			"action":    step.Action,
			"attempt":   attempt + 1,
			"delayMs":   delay.Milliseconds(),
		})
		metrics.StepRetries.WithLabelValues(step.Action).Inc()
		time.Sleep(delay)
	}
}

// dispatch executes one step verb. The returned map is the executor's
// response payload for the step.completed frame.
func (e *Engine) dispatch(plan *models.Plan, step *models.Step) (map[string]interface{}, *stepError) {
	switch step.Action {
	case "wait":
		ms, _ := models.NumberField(step.Params, "ms")
		if ms <= 0 {
			ms = 1000
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil, nil

	case "verify":
		return e.dispatchVerify(plan, step)

	case "execute_intent":
		return e.dispatchIntent(plan, step)

	case "launch", "navigate", "click", "type", "select", "screenshot", "close":
		resp, serr := e.browserRequest("browser."+step.Action, step.Params, e.stepTimeout(step))
		if serr != nil {
			return nil, serr
		}
		if step.Action == "navigate" {
			if url, ok := step.Params["url"].(string); ok {
				e.mu.Lock()
				e.lastURL = url
				e.mu.Unlock()
			}
		}
		return resp.Payload, nil

	default:
		if strings.HasPrefix(step.Action, "frank_") && plan.HasTool(step.Action) {
			payload := map[string]interface{}{"tool": step.Action}
			for k, v := range step.Params {
				payload[k] = v
			}
			resp, serr := e.browserRequest(models.TypeToolInvoke, payload, e.stepTimeout(step))
			if serr != nil {
				return nil, serr
			}
			return resp.Payload, nil
		}
		return nil, &stepError{Code: "unknown_verb", Reason: fmt.Sprintf("unknown verb: %s", step.Action), Retryable: false}
	}
}

// dispatchVerify screenshots the page, pulls its text, and adjudicates the
// expectation against it.
func (e *Engine) dispatchVerify(plan *models.Plan, step *models.Step) (map[string]interface{}, *stepError) {
	expected, _ := step.Params["expected"].(string)
	if expected == "" {
		return nil, &stepError{Code: "bad_params", Reason: "verify requires an expected predicate", Retryable: false}
	}

	// Screenshot is evidence, not a gate: a capture failure does not fail
	// the verification.
	if _, serr := e.browserRequest(models.TypeBrowserScreenshot, nil, e.stepTimeout(step)); serr != nil {
		logging.Debug().Str("reason", serr.Reason).Msg("verify screenshot unavailable")
	}

	resp, serr := e.browserRequest(models.TypeBrowserExtract, nil, e.stepTimeout(step))
	if serr != nil {
		return nil, serr
	}
	pageText, _ := resp.Payload["text"].(string)
	url, _ := resp.Payload["url"].(string)
	if url == "" {
		e.mu.Lock()
		url = e.lastURL
		e.mu.Unlock()
	}

	result := Verify(expected, pageText, url, plan.Intent)
	e.lightning.recordVerdict(result.Passed)
	if !result.Passed {
		return nil, &stepError{Code: "verify_failed", Reason: result.Reason, Retryable: true}
	}
	return map[string]interface{}{"verified": true, "reason": result.Reason}, nil
}

// dispatchIntent expands a natural-language intent into known verbs and
// runs them inline as one step.
func (e *Engine) dispatchIntent(plan *models.Plan, step *models.Step) (map[string]interface{}, *stepError) {
	intent, _ := step.Params["intent"].(string)
	if intent == "" {
		intent = plan.Intent
	}
	sub := ParseIntent(intent, plan.ToolBag)
	if len(sub) == 0 {
		return nil, &stepError{Code: "bad_params", Reason: fmt.Sprintf("intent yielded no steps: %q", intent), Retryable: false}
	}
	for i := range sub {
		if _, serr := e.dispatch(plan, &sub[i]); serr != nil {
			return nil, serr
		}
	}
	return map[string]interface{}{"expandedSteps": len(sub)}, nil
}

// browserRequest sends one executor request under the circuit breaker.
func (e *Engine) browserRequest(msgType string, payload map[string]interface{}, timeout time.Duration) (*models.Message, *stepError) {
	name := string(e.cfg.Executor)
	done, err := e.breakers.Allow(name)
	if err != nil {
		remaining := e.breakers.RemainingCooldown(name)
		return nil, &stepError{
			Code:      "circuit_open",
			Reason:    fmt.Sprintf("executor circuit open, retry in %s", remaining.Round(time.Millisecond)),
			Retryable: true,
		}
	}

	resp, err := e.Request(msgType, payload, timeout)
	if err != nil {
		done(false)
		if errors.Is(err, ErrBrowserTimeout) {
			return nil, &stepError{Code: "browserTimeout", Reason: fmt.Sprintf("%s: no response within %s", msgType, timeout), Retryable: true}
		}
		return nil, &stepError{Code: "send_failed", Reason: err.Error(), Retryable: true}
	}
	if resp.Type == models.TypeBrowserError || resp.Type == models.TypeToolError {
		done(false)
		reason, _ := resp.Payload["error"].(string)
		if reason == "" {
			reason = "executor reported an error"
		}
		retryable := true
		if v, ok := resp.Payload["retryable"].(bool); ok {
			retryable = v
		}
		return nil, &stepError{Code: "executor_error", Reason: reason, Retryable: retryable}
	}
	done(true)
	return resp, nil
}

// substituteSelector swaps a known-bad selector for the context's best
// performer before the network round-trip.
func (e *Engine) substituteSelector(step *models.Step) {
	if e.ledger == nil {
		return
	}
	selector, ok := step.Params["selector"].(string)
	if !ok || selector == "" {
		return
	}
	e.mu.Lock()
	url := e.lastURL
	e.mu.Unlock()

	if !e.ledger.IsKnownBadSelector(selector, url) {
		return
	}
	if best := e.ledger.FindBestSelector(step.Action, url); best != "" && best != selector {
		logging.Info().
			Str("from", selector).
			Str("to", best).
			Str("action", step.Action).
			Msg("substituting known-bad selector")
		step.Params["selector"] = best
	}
}

func (e *Engine) recordSelectorOutcome(step *models.Step, success bool) {
	if e.ledger == nil {
		return
	}
	selector, ok := step.Params["selector"].(string)
	if !ok || selector == "" {
		return
	}
	e.mu.Lock()
	url := e.lastURL
	e.mu.Unlock()

	var err error
	if success {
		err = e.ledger.RecordSelectorSuccess(selector, step.Action, url)
	} else {
		err = e.ledger.RecordSelectorFailure(selector, step.Action, url)
	}
	if err != nil {
		logging.Warn().Err(err).Msg("selector ledger write failed")
	}
}

// consultHelpers asks the executor's dynamic tools for a recovery before
// the retry. A returned replacement selector is substituted in place.
func (e *Engine) consultHelpers(step *models.Step, serr *stepError) {
	selector, _ := step.Params["selector"].(string)
	hint, _ := step.Params["hint"].(string)

	tool, err := e.catalog.MatchTool(serr.Reason)
	if err != nil {
		return
	}
	found, err := e.catalog.Invoke(tool, selector, hint, step.Action, serr.Reason)
	if err != nil {
		logging.Debug().Err(err).Str("tool", tool.Name).Msg("helper tool failed")
		return
	}
	if found != "" && found != selector {
		logging.Info().Str("tool", tool.Name).Str("selector", found).Msg("helper tool found replacement selector")
		if step.Params == nil {
			step.Params = map[string]interface{}{}
		}
		step.Params["selector"] = found
	}
}

func (e *Engine) stepTimeout(step *models.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return e.cfg.StepTimeout
}

// reply answers the frame's sender, preserving correlation.
func (e *Engine) reply(to *models.Message, msgType string, payload map[string]interface{}) {
	msg := models.NewMessage(e.cfg.Component, to.Source, msgType, payload)
	msg.CorrelationID = to.CorrelationID
	if err := e.send.Send(msg); err != nil {
		logging.Warn().Err(err).Str("type", msgType).Msg("reply send failed")
	}
}

// notify emits a lifecycle frame toward the supervisor, tied to the plan's
// correlation id.
func (e *Engine) notify(supervisor models.ComponentID, plan *models.Plan, msgType string, payload map[string]interface{}) {
	msg := models.NewMessage(e.cfg.Component, supervisor, msgType, payload)
	msg.CorrelationID = plan.CorrelationID
	if err := e.send.Send(msg); err != nil {
		logging.Warn().Err(err).Str("type", msgType).Msg("notify send failed")
	}
}

// disallowedVerb scans a plan for a verb the engine cannot dispatch.
func disallowedVerb(plan *models.Plan) (string, bool) {
	for _, step := range plan.Steps {
		switch step.Action {
		case "launch", "navigate", "click", "type", "select", "screenshot", "close", "wait", "verify", "execute_intent":
			continue
		default:
			if strings.HasPrefix(step.Action, "frank_") && plan.HasTool(step.Action) {
				continue
			}
			return step.Action, true
		}
	}
	return "", false
}

// backoffDelay is clamp(base * 2^attempt, base/2, max) with ±20% jitter.
func backoffDelay(attempt int) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	delay := backoffBase << uint(attempt)
	if delay < backoffBase/2 {
		delay = backoffBase / 2
	}
	if delay > backoffMax {
		delay = backoffMax
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
