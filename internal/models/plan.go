// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"errors"
	"fmt"
	"time"
)

// Plan parse errors. Each maps onto a plan.rejected reason.
var (
	ErrPlanNotObject     = errors.New("plan payload must be an object")
	ErrPlanMissingID     = errors.New("plan id is required and must be a string")
	ErrPlanStepsNotArray = errors.New("plan steps must be an array")
	ErrStepNotObject     = errors.New("plan step must be an object")
	ErrStepMissingAction = errors.New("plan step action is required")
)

// Step is the smallest retriable unit of work: an action verb plus
// parameters, with an optional per-step timeout and retry budget.
type Step struct {
	Action  string                 `json:"action"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Timeout time.Duration          `json:"-"`
	Retries int                    `json:"retries,omitempty"`
}

// TimeoutMs exposes the timeout for JSON round-trips in milliseconds.
func (s *Step) TimeoutMs() int64 {
	return s.Timeout.Milliseconds()
}

// ToolDescriptor names a capability a plan is scoped to.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Plan is an ordered sequence of steps submitted by a Supervisor, plus the
// curated tool bag and the correlation id tying the run together.
type Plan struct {
	ID            string           `json:"id"`
	Steps         []Step           `json:"steps"`
	ToolBag       []ToolDescriptor `json:"toolBag,omitempty"`
	Intent        string           `json:"intent,omitempty"`
	CorrelationID string           `json:"correlationId,omitempty"`
}

// HasTool reports whether the tool bag contains the named capability.
func (p *Plan) HasTool(name string) bool {
	for _, t := range p.ToolBag {
		if t.Name == name {
			return true
		}
	}
	return false
}

// ParsePlan decodes a plan.submit payload. Each malformed shape returns a
// distinct error whose text becomes the plan.rejected reason.
func ParsePlan(payload map[string]interface{}) (*Plan, error) {
	if payload == nil {
		return nil, ErrPlanNotObject
	}

	id, ok := payload["id"].(string)
	if !ok || id == "" {
		return nil, ErrPlanMissingID
	}

	rawSteps, ok := payload["steps"].([]interface{})
	if !ok {
		return nil, ErrPlanStepsNotArray
	}

	plan := &Plan{ID: id}
	for i, raw := range rawSteps {
		stepMap, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: index %d", ErrStepNotObject, i)
		}
		step, err := parseStep(stepMap)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		plan.Steps = append(plan.Steps, step)
	}

	if intent, ok := payload["intent"].(string); ok {
		plan.Intent = intent
	}
	if rawBag, ok := payload["toolBag"].([]interface{}); ok {
		for _, raw := range rawBag {
			switch v := raw.(type) {
			case string:
				plan.ToolBag = append(plan.ToolBag, ToolDescriptor{Name: v})
			case map[string]interface{}:
				td := ToolDescriptor{}
				if name, ok := v["name"].(string); ok {
					td.Name = name
				}
				if desc, ok := v["description"].(string); ok {
					td.Description = desc
				}
				if td.Name != "" {
					plan.ToolBag = append(plan.ToolBag, td)
				}
			}
		}
	}

	return plan, nil
}

func parseStep(raw map[string]interface{}) (Step, error) {
	action, ok := raw["action"].(string)
	if !ok || action == "" {
		return Step{}, ErrStepMissingAction
	}

	step := Step{Action: action}
	if params, ok := raw["params"].(map[string]interface{}); ok {
		step.Params = params
	}
	if timeoutMs, ok := numberField(raw, "timeout"); ok {
		step.Timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if retries, ok := numberField(raw, "retries"); ok {
		step.Retries = int(retries)
	}
	return step, nil
}

// numberField reads a numeric payload field. JSON decoding yields float64;
// messages built in-process may carry native ints.
func numberField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// NumberField is the exported form used by payload consumers outside this
// package.
func NumberField(m map[string]interface{}, key string) (float64, bool) {
	return numberField(m, key)
}
