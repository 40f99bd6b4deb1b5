// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"testing"

	"github.com/hclerval/galvanic/internal/models"
)

func TestParseIntentNavigationAndScreenshot(t *testing.T) {
	steps := ParseIntent("go to https://example.com/login then take a screenshot", nil)
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2: %+v", len(steps), steps)
	}
	if steps[0].Action != "navigate" {
		t.Fatalf("first action = %s", steps[0].Action)
	}
	if url, _ := steps[0].Params["url"].(string); url != "https://example.com/login" {
		t.Fatalf("url = %q", url)
	}
	if steps[1].Action != "screenshot" {
		t.Fatalf("second action = %s", steps[1].Action)
	}
}

func TestParseIntentClickQuotedSelector(t *testing.T) {
	steps := ParseIntent(`click "#submit-button"`, nil)
	if len(steps) != 1 || steps[0].Action != "click" {
		t.Fatalf("steps = %+v", steps)
	}
	if sel, _ := steps[0].Params["selector"].(string); sel != "#submit-button" {
		t.Fatalf("selector = %q", sel)
	}
}

func TestParseIntentClickUnquotedTail(t *testing.T) {
	steps := ParseIntent("click on the login button", nil)
	if len(steps) != 1 {
		t.Fatalf("steps = %+v", steps)
	}
	if sel, _ := steps[0].Params["selector"].(string); sel != "login button" {
		t.Fatalf("selector = %q", sel)
	}
}

func TestParseIntentTypeIntoField(t *testing.T) {
	steps := ParseIntent(`type "hunter2" into the password field`, nil)
	if len(steps) != 1 || steps[0].Action != "type" {
		t.Fatalf("steps = %+v", steps)
	}
	if text, _ := steps[0].Params["text"].(string); text != "hunter2" {
		t.Fatalf("text = %q", text)
	}
	if sel, _ := steps[0].Params["selector"].(string); sel != "password field" {
		t.Fatalf("selector = %q", sel)
	}
}

func TestParseIntentVerifyClause(t *testing.T) {
	steps := ParseIntent(`verify "welcome back"`, nil)
	if len(steps) != 1 || steps[0].Action != "verify" {
		t.Fatalf("steps = %+v", steps)
	}
	if expected, _ := steps[0].Params["expected"].(string); expected != "welcome back" {
		t.Fatalf("expected = %q", expected)
	}
}

func TestParseIntentMultiClause(t *testing.T) {
	steps := ParseIntent(`go to https://example.com, click "#login", verify "dashboard" and close`, nil)
	want := []string{"navigate", "click", "verify", "close"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %d, want %d: %+v", len(steps), len(want), steps)
	}
	for i, action := range want {
		if steps[i].Action != action {
			t.Fatalf("step %d action = %s, want %s", i, steps[i].Action, action)
		}
	}
}

func TestParseIntentFrankToolByName(t *testing.T) {
	bag := []models.ToolDescriptor{{Name: "frank_harvest_links"}}
	steps := ParseIntent("harvest_links from the sidebar", bag)
	if len(steps) != 1 || steps[0].Action != "frank_harvest_links" {
		t.Fatalf("steps = %+v", steps)
	}
	if intent, _ := steps[0].Params["intent"].(string); intent == "" {
		t.Fatal("frank tool step should carry the original clause")
	}
}

func TestParseIntentUnknownPhrasing(t *testing.T) {
	if steps := ParseIntent("contemplate the void", nil); len(steps) != 0 {
		t.Fatalf("unknown phrasing yielded steps: %+v", steps)
	}
	if steps := ParseIntent("", nil); len(steps) != 0 {
		t.Fatalf("empty intent yielded steps: %+v", steps)
	}
}
