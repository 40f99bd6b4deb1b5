// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"context"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
)

// Mode is the worker face's reasoning tier.
type Mode string

const (
	ModeDumb   Mode = "dumb"
	ModeClaude Mode = "claude"
)

// maxThinkingHistory bounds the retained thought log.
const maxThinkingHistory = 50

// Thinker is the external reasoning endpoint consulted in claude mode.
// Tests and offline worker faces install a stub.
type Thinker interface {
	Think(ctx context.Context, prompt string) (string, error)
}

// Thought is one recorded reasoning exchange.
type Thought struct {
	Prompt   string    `json:"prompt"`
	Response string    `json:"response"`
	At       time.Time `json:"at"`
}

// LightningStatus is the state machine's snapshot for igor.lightning.status
// and GET /lightning.
type LightningStatus struct {
	Mode                Mode      `json:"mode"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	TotalStrikes        int       `json:"totalStrikes"`
	LastStrike          time.Time `json:"lastStrike,omitzero"`
	LastReason          string    `json:"lastReason,omitempty"`
	AutoThreshold       int       `json:"autoThreshold"`
	HistoryLen          int       `json:"historyLen"`
}

// Lightning is the dual-mode escalation state machine. Consecutive step
// failures at or above the threshold strike the worker into claude mode;
// powerDown returns it to dumb. A success resets the counter without
// changing mode.
type Lightning struct {
	mu                  sync.Mutex
	mode                Mode
	consecutiveFailures int
	totalStrikes        int
	lastStrike          time.Time
	lastReason          string
	history             []Thought

	autoThreshold int
	thinker       Thinker
}

// NewLightning creates the machine in dumb mode. A non-positive threshold
// defaults to 3. thinker may be nil; Think then returns a canned note.
func NewLightning(autoThreshold int, thinker Thinker) *Lightning {
	if autoThreshold <= 0 {
		autoThreshold = 3
	}
	return &Lightning{
		mode:          ModeDumb,
		autoThreshold: autoThreshold,
		thinker:       thinker,
	}
}

// Mode returns the current tier.
func (l *Lightning) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// RecordFailure counts a step failure. Returns true when this failure
// triggered an automatic strike.
func (l *Lightning) RecordFailure(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveFailures++
	if l.mode == ModeDumb && l.consecutiveFailures >= l.autoThreshold {
		l.strikeLocked("auto: " + reason)
		return true
	}
	return false
}

// RecordSuccess resets the failure counter. The mode is untouched.
func (l *Lightning) RecordSuccess() {
	l.mu.Lock()
	l.consecutiveFailures = 0
	l.mu.Unlock()
}

// Strike escalates explicitly.
func (l *Lightning) Strike(reason string) {
	l.mu.Lock()
	l.strikeLocked(reason)
	l.mu.Unlock()
}

func (l *Lightning) strikeLocked(reason string) {
	l.mode = ModeClaude
	l.totalStrikes++
	l.lastStrike = time.Now()
	l.lastReason = reason
	logging.Warn().Str("reason", reason).Int("strikes", l.totalStrikes).Msg("lightning strike")
}

// PowerDown returns to dumb mode and clears the failure counter.
func (l *Lightning) PowerDown() {
	l.mu.Lock()
	l.mode = ModeDumb
	l.consecutiveFailures = 0
	l.mu.Unlock()
	logging.Info().Msg("lightning powered down")
}

// Think consults the reasoning endpoint and appends the exchange to the
// bounded history.
func (l *Lightning) Think(ctx context.Context, prompt string) (string, error) {
	var response string
	var err error
	if l.thinker != nil {
		response, err = l.thinker.Think(ctx, prompt)
		if err != nil {
			return "", err
		}
	} else {
		response = "no reasoning endpoint configured"
	}

	l.mu.Lock()
	l.history = append(l.history, Thought{Prompt: prompt, Response: response, At: time.Now()})
	if len(l.history) > maxThinkingHistory {
		l.history = l.history[len(l.history)-maxThinkingHistory:]
	}
	l.mu.Unlock()
	return response, nil
}

// History returns a copy of the retained thoughts, oldest first.
func (l *Lightning) History() []Thought {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Thought, len(l.history))
	copy(out, l.history)
	return out
}

// Status returns a snapshot of the machine.
func (l *Lightning) Status() LightningStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LightningStatus{
		Mode:                l.mode,
		ConsecutiveFailures: l.consecutiveFailures,
		TotalStrikes:        l.totalStrikes,
		LastStrike:          l.lastStrike,
		LastReason:          l.lastReason,
		AutoThreshold:       l.autoThreshold,
		HistoryLen:          len(l.history),
	}
}

// recordVerdict publishes the adjudication outcome for metrics.
func (l *Lightning) recordVerdict(pass bool) {
	tier := string(l.Mode())
	if pass {
		metrics.RecordLightning(tier, "pass")
	} else {
		metrics.RecordLightning(tier, "fail")
	}
}
