// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"fmt"
	"strings"
)

// VerifyResult is the outcome of a verify step.
type VerifyResult struct {
	Passed    bool     `json:"passed"`
	Reason    string   `json:"reason"`
	Positives []string `json:"positives,omitempty"`
	Negatives []string `json:"negatives,omitempty"`
}

// indicator lists per predicate family. Matching is case-insensitive
// substring search over the page text.
var (
	loginPositives = []string{"welcome", "dashboard", "logout", "sign out", "my account", "profile"}
	loginNegatives = []string{"invalid", "incorrect", "wrong password", "login failed", "access denied", "try again"}

	creationPositives = []string{"success", "created", "published", "posted", "saved", "submitted", "thank you"}
	creationNegatives = []string{"error", "failed", "duplicate", "could not", "unable to"}

	approvalPositives = []string{"approved", "accepted", "confirmed", "granted"}
	approvalNegatives = []string{"rejected", "denied", "declined", "pending"}

	genericNegatives = []string{"error", "failed", "not found", "forbidden", "exception"}
)

// Verify adjudicates a natural-language expectation against the current
// page. The predicate family picks the indicator lists; "should not"
// phrasing inverts the polarity of the negated phrase.
func Verify(expected, pageText, url, intent string) VerifyResult {
	text := strings.ToLower(pageText)
	predicate := strings.ToLower(expected)
	context := predicate + " " + strings.ToLower(intent)

	// "should NOT contain X": the phrase being present is the failure.
	if phrase, ok := negatedPhrase(predicate); ok {
		if phrase != "" && strings.Contains(text, phrase) {
			return VerifyResult{
				Passed:    false,
				Reason:    fmt.Sprintf("forbidden content present: %q", phrase),
				Negatives: []string{phrase},
			}
		}
		return VerifyResult{Passed: true, Reason: "forbidden content absent"}
	}

	var positives, negatives []string
	switch {
	case containsAny(context, "log in", "login", "sign in", "authenticate"):
		positives, negatives = loginPositives, loginNegatives
	case containsAny(context, "create", "post", "publish", "submit", "save"):
		positives, negatives = creationPositives, creationNegatives
	case containsAny(context, "approve", "accept", "confirm"):
		positives, negatives = approvalPositives, approvalNegatives
	default:
		// Generic: the expectation's own words are the positives.
		positives, negatives = expectationWords(predicate), genericNegatives
	}

	found := matches(text, positives)
	against := matches(text, negatives)

	switch {
	case len(found) > 0 && len(against) == 0:
		return VerifyResult{Passed: true, Reason: "positive indicators present", Positives: found}
	case len(found) > 2*len(against) && len(found) > 0:
		return VerifyResult{
			Passed:    true,
			Reason:    "positive indicators dominate",
			Positives: found,
			Negatives: against,
		}
	case len(against) > 0:
		return VerifyResult{
			Passed:    false,
			Reason:    fmt.Sprintf("negative indicators present: %s", strings.Join(against, ", ")),
			Positives: found,
			Negatives: against,
		}
	default:
		return VerifyResult{Passed: false, Reason: "no clear indicators"}
	}
}

// negatedPhrase extracts the forbidden phrase from "should not ..." style
// predicates.
func negatedPhrase(predicate string) (string, bool) {
	for _, marker := range []string{"should not contain", "should not show", "should not", "must not"} {
		if idx := strings.Index(predicate, marker); idx >= 0 {
			phrase := strings.TrimSpace(predicate[idx+len(marker):])
			phrase = strings.Trim(phrase, `"'.`)
			return phrase, true
		}
	}
	return "", false
}

// expectationWords keeps the predicate's significant words as ad hoc
// positive indicators.
func expectationWords(predicate string) []string {
	var out []string
	for _, w := range strings.Fields(predicate) {
		w = strings.Trim(w, `"'.,:;`)
		if len(w) >= 4 && !stopWord(w) {
			out = append(out, w)
		}
	}
	return out
}

func stopWord(w string) bool {
	switch w {
	case "should", "must", "page", "contain", "contains", "display", "displays", "show", "shows", "with", "have", "that", "text", "visible":
		return true
	}
	return false
}

func matches(text string, indicators []string) []string {
	var out []string
	for _, ind := range indicators {
		if strings.Contains(text, ind) {
			out = append(out, ind)
		}
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
