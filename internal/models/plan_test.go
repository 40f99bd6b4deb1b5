// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"errors"
	"testing"
	"time"
)

func validPlanPayload() map[string]interface{} {
	return map[string]interface{}{
		"id": "p1",
		"steps": []interface{}{
			map[string]interface{}{
				"action": "navigate",
				"params": map[string]interface{}{"url": "https://example.test"},
			},
			map[string]interface{}{
				"action":  "click",
				"params":  map[string]interface{}{"selector": "#submit"},
				"timeout": float64(5000),
				"retries": float64(3),
			},
		},
		"intent":  "log in and submit the form",
		"toolBag": []interface{}{"frank_popup_dismisser", map[string]interface{}{"name": "frank_selector_healer", "description": "retries selectors"}},
	}
}

func TestParsePlan_Valid(t *testing.T) {
	plan, err := ParsePlan(validPlanPayload())
	if err != nil {
		t.Fatalf("ParsePlan() error: %v", err)
	}

	if plan.ID != "p1" {
		t.Errorf("ID = %q, want p1", plan.ID)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[0].Action != "navigate" {
		t.Errorf("Steps[0].Action = %q, want navigate", plan.Steps[0].Action)
	}
	if plan.Steps[1].Timeout != 5*time.Second {
		t.Errorf("Steps[1].Timeout = %v, want 5s", plan.Steps[1].Timeout)
	}
	if plan.Steps[1].Retries != 3 {
		t.Errorf("Steps[1].Retries = %d, want 3", plan.Steps[1].Retries)
	}
	if plan.Intent == "" {
		t.Error("Intent not parsed")
	}
	if !plan.HasTool("frank_popup_dismisser") || !plan.HasTool("frank_selector_healer") {
		t.Errorf("tool bag not parsed: %+v", plan.ToolBag)
	}
	if plan.HasTool("frank_nonexistent") {
		t.Error("HasTool returned true for an absent tool")
	}
}

func TestParsePlan_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		wantErr error
	}{
		{"nil payload", nil, ErrPlanNotObject},
		{"missing id", map[string]interface{}{"steps": []interface{}{}}, ErrPlanMissingID},
		{"non-string id", map[string]interface{}{"id": float64(42), "steps": []interface{}{}}, ErrPlanMissingID},
		{"steps not array", map[string]interface{}{"id": "p1", "steps": "nope"}, ErrPlanStepsNotArray},
		{"steps missing", map[string]interface{}{"id": "p1"}, ErrPlanStepsNotArray},
		{"step not object", map[string]interface{}{"id": "p1", "steps": []interface{}{"zap"}}, ErrStepNotObject},
		{"step missing action", map[string]interface{}{"id": "p1", "steps": []interface{}{map[string]interface{}{"params": map[string]interface{}{}}}}, ErrStepMissingAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan(tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParsePlan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePlan_EmptyStepsAllowed(t *testing.T) {
	plan, err := ParsePlan(map[string]interface{}{"id": "p-empty", "steps": []interface{}{}})
	if err != nil {
		t.Fatalf("ParsePlan() error: %v", err)
	}
	if len(plan.Steps) != 0 {
		t.Errorf("len(Steps) = %d, want 0", len(plan.Steps))
	}
}

func TestNumberField(t *testing.T) {
	m := map[string]interface{}{
		"float": float64(12.5),
		"int":   7,
		"int64": int64(9),
		"str":   "nope",
	}

	if v, ok := NumberField(m, "float"); !ok || v != 12.5 {
		t.Errorf("NumberField(float) = %v, %v", v, ok)
	}
	if v, ok := NumberField(m, "int"); !ok || v != 7 {
		t.Errorf("NumberField(int) = %v, %v", v, ok)
	}
	if v, ok := NumberField(m, "int64"); !ok || v != 9 {
		t.Errorf("NumberField(int64) = %v, %v", v, ok)
	}
	if _, ok := NumberField(m, "str"); ok {
		t.Error("NumberField(str) should not parse")
	}
	if _, ok := NumberField(m, "absent"); ok {
		t.Error("NumberField(absent) should not parse")
	}
}
