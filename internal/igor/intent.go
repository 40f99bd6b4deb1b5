// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"regexp"
	"strings"

	"github.com/hclerval/galvanic/internal/models"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// quoted captures the first single- or double-quoted phrase.
var quotedPattern = regexp.MustCompile(`["']([^"']+)["']`)

// ParseIntent turns a natural-language intent into executable steps using
// keyword heuristics. Unknown phrasing yields no steps; the tool bag allows
// frank_* capabilities to be addressed directly by name.
func ParseIntent(intent string, bag []models.ToolDescriptor) []models.Step {
	var steps []models.Step
	for _, clause := range splitClauses(intent) {
		if step, ok := parseClause(clause, bag); ok {
			steps = append(steps, step)
		}
	}
	return steps
}

func splitClauses(intent string) []string {
	parts := regexp.MustCompile(`(?i)\s*(?:,|;|\bthen\b|\band\b)\s*`).Split(intent, -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseClause(clause string, bag []models.ToolDescriptor) (models.Step, bool) {
	lower := strings.ToLower(clause)

	// A frank_* capability named directly in the intent dispatches as-is.
	for _, tool := range bag {
		if strings.HasPrefix(tool.Name, "frank_") && strings.Contains(lower, strings.TrimPrefix(tool.Name, "frank_")) {
			return models.Step{Action: tool.Name, Params: map[string]interface{}{"intent": clause}}, true
		}
	}

	switch {
	case containsAny(lower, "navigate", "go to", "open", "visit"):
		if url := urlPattern.FindString(clause); url != "" {
			return models.Step{Action: "navigate", Params: map[string]interface{}{"url": url}}, true
		}
		return models.Step{}, false

	case strings.Contains(lower, "screenshot"):
		return models.Step{Action: "screenshot"}, true

	case containsAny(lower, "click", "press", "tap"):
		target := quotedOrTail(clause, "click", "press", "tap")
		if target == "" {
			return models.Step{}, false
		}
		return models.Step{Action: "click", Params: map[string]interface{}{"selector": target}}, true

	case containsAny(lower, "type", "enter", "fill"):
		text := firstQuoted(clause)
		if text == "" {
			return models.Step{}, false
		}
		params := map[string]interface{}{"text": text}
		if into := afterKeyword(lower, clause, " into "); into != "" {
			params["selector"] = into
		}
		return models.Step{Action: "type", Params: params}, true

	case containsAny(lower, "verify", "check", "confirm", "expect"):
		expected := quotedOrTail(clause, "verify", "check", "confirm", "expect")
		if expected == "" {
			return models.Step{}, false
		}
		return models.Step{Action: "verify", Params: map[string]interface{}{"expected": expected}}, true

	case strings.Contains(lower, "close"):
		return models.Step{Action: "close"}, true
	}
	return models.Step{}, false
}

func firstQuoted(s string) string {
	if m := quotedPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// quotedOrTail prefers a quoted phrase; otherwise everything after the
// first matching verb.
func quotedOrTail(clause string, verbs ...string) string {
	if q := firstQuoted(clause); q != "" {
		return q
	}
	lower := strings.ToLower(clause)
	for _, verb := range verbs {
		if idx := strings.Index(lower, verb); idx >= 0 {
			tail := strings.TrimSpace(clause[idx+len(verb):])
			tail = strings.TrimPrefix(tail, "on ")
			tail = strings.TrimPrefix(tail, "the ")
			if tail != "" {
				return strings.Trim(tail, `.`)
			}
		}
	}
	return ""
}

func afterKeyword(lower, original, keyword string) string {
	idx := strings.Index(lower, keyword)
	if idx < 0 {
		return ""
	}
	tail := strings.TrimSpace(original[idx+len(keyword):])
	tail = strings.TrimPrefix(tail, "the ")
	return strings.Trim(tail, `."'`)
}
