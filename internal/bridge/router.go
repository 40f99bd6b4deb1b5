// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package bridge

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/dlq"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/metrics"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/pressure"
	"github.com/hclerval/galvanic/internal/ratelimit"
)

// shedThresholdBytes: under warning pressure, frames larger than this are
// dropped.
const shedThresholdBytes = 1024

// DLQ reasons the router emits. Tests and operators match on these strings.
const (
	ReasonTargetNotConnected = "Target not connected"
	ReasonCircuitOpen        = "Circuit breaker open"
	ReasonQueueFull          = "Send queue full"
)

// InlineHandler consumes a control message the router does not route.
type InlineHandler func(connID string, msg *models.Message)

// RouterConfig carries the policy knobs for the routing pipeline.
type RouterConfig struct {
	MaxMessageSize       int
	RequireSigning       bool
	SigningSecret        []byte
	MinCompatibleVersion string
}

// Router validates, deduplicates, and routes every inbound frame.
type Router struct {
	cfg      RouterConfig
	manager  *Manager
	registry *Registry
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	seen     *cache.SeenCache
	letters  *dlq.Queue
	log      *cache.RingLog[models.Message]
	monitor  *pressure.Monitor

	// errWindow and okWindow back the error/success rates in /debug/state.
	errWindow *cache.SlidingWindowCounter
	okWindow  *cache.SlidingWindowCounter

	inline map[string]InlineHandler
}

// NewRouter wires the routing pipeline. Inline handlers for doctor control
// and report submission attach afterwards via Inline.
func NewRouter(
	cfg RouterConfig,
	manager *Manager,
	registry *Registry,
	limiter *ratelimit.Limiter,
	breakers *breaker.Registry,
	seen *cache.SeenCache,
	letters *dlq.Queue,
	log *cache.RingLog[models.Message],
	monitor *pressure.Monitor,
) *Router {
	return &Router{
		cfg:       cfg,
		manager:   manager,
		registry:  registry,
		limiter:   limiter,
		breakers:  breakers,
		seen:      seen,
		letters:   letters,
		log:       log,
		monitor:   monitor,
		errWindow: cache.NewSlidingWindowCounter(time.Minute, 12),
		okWindow:  cache.NewSlidingWindowCounter(time.Minute, 12),
		inline:    make(map[string]InlineHandler),
	}
}

// Inline installs a handler for a control type. Must be called before
// traffic starts.
func (r *Router) Inline(msgType string, fn InlineHandler) {
	r.inline[msgType] = fn
}

// ErrorRate returns inbound failures observed over the last minute.
func (r *Router) ErrorRate() int64 { return r.errWindow.Count() }

// SuccessRate returns successful deliveries over the last minute.
func (r *Router) SuccessRate() int64 { return r.okWindow.Count() }

// HandleFrame runs one inbound frame through the pipeline. A panic in any
// stage (including inline handlers) is recovered, logged, and counted so
// one poisoned message cannot take the hub down.
func (r *Router) HandleFrame(connID string, frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.errWindow.IncrementOne()
			metrics.WSErrors.WithLabelValues("panic").Inc()
			logging.Error().
				Str("conn", connID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic in frame handler")
		}
	}()

	start := time.Now()
	metrics.WSMessagesReceived.Inc()
	r.manager.RecordActivity(connID)

	// Rate limit.
	if !r.limiter.Allow(connID) {
		retryAfter := r.limiter.RetryAfter(connID)
		r.sendErrorPayload(connID, map[string]interface{}{
			"error":      "Rate limit exceeded",
			"retryAfter": retryAfter.Milliseconds(),
		})
		metrics.RecordRejection("rate_limited")
		return
	}

	// Load shed.
	if r.monitor != nil && r.monitor.Level() >= pressure.LevelWarning && len(frame) > shedThresholdBytes {
		r.sendError(connID, "Message shed under memory pressure")
		metrics.LoadShedDrops.Inc()
		metrics.RecordRejection("shed")
		return
	}

	// Size check.
	if len(frame) > r.cfg.MaxMessageSize {
		r.manager.RecordError(connID)
		r.sendError(connID, fmt.Sprintf("Message size %d exceeds maximum %d", len(frame), r.cfg.MaxMessageSize))
		metrics.RecordRejection("oversize")
		return
	}

	// Parse.
	var msg models.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		r.errWindow.IncrementOne()
		r.sendError(connID, "Malformed message")
		metrics.RecordRejection("parse")
		return
	}

	// Schema.
	if err := msg.Validate(); err != nil {
		r.errWindow.IncrementOne()
		r.sendError(connID, "Invalid message: "+err.Error())
		metrics.RecordRejection("schema")
		return
	}
	msg.EnsureCorrelationID()

	// Signature.
	if r.cfg.RequireSigning {
		if msg.Signature == "" || !msg.VerifySignature(r.cfg.SigningSecret) {
			r.errWindow.IncrementOne()
			r.sendError(connID, "Invalid signature")
			metrics.RecordRejection("signature")
			return
		}
	}

	// Dedupe.
	if r.seen.IsDuplicate(msg.ID) {
		metrics.MessagesDeduplicated.Inc()
		metrics.RecordRejection("duplicate")
		return
	}

	// Inline control types.
	switch msg.Type {
	case models.TypeComponentRegister:
		r.handleRegister(connID, &msg)
		r.observe(&msg, "inline", start)
		return
	case models.TypeHeartbeat:
		r.handleHeartbeat(connID, &msg)
		r.observe(&msg, "inline", start)
		return
	}
	if fn, ok := r.inline[msg.Type]; ok {
		fn(connID, &msg)
		r.observe(&msg, "inline", start)
		return
	}

	// Routing.
	if msg.Target.IsBroadcast() {
		r.broadcast(&msg, msg.Source)
		r.observe(&msg, "broadcast", start)
		return
	}
	if r.deliver(&msg) {
		r.observe(&msg, "delivered", start)
	} else {
		r.observe(&msg, "failed", start)
	}
}

// observe appends to the message log and records the routing histogram.
func (r *Router) observe(msg *models.Message, outcome string, start time.Time) {
	r.log.Push(*msg)
	metrics.RecordRouting(msg.Type, outcome, time.Since(start))
}

// handleRegister processes component.register: version gate, duplicate
// kick, registry update, version.announce broadcast.
func (r *Router) handleRegister(connID string, msg *models.Message) {
	rawID, _ := msg.Payload["id"].(string)
	version, _ := msg.Payload["version"].(string)

	component, err := models.ParseComponentID(rawID)
	if err != nil || component.IsBroadcast() {
		r.manager.RecordError(connID)
		r.sendError(connID, "Invalid component id")
		return
	}

	if !models.VersionCompatible(version, r.cfg.MinCompatibleVersion) {
		r.sendError(connID, "Incompatible version")
		metrics.RecordRejection("version")
		r.manager.Kick(connID, "Incompatible version")
		return
	}

	if prior, replaced := r.registry.Register(component, connID, version); replaced {
		logging.Warn().
			Str("component", string(component)).
			Str("prior_conn", prior).
			Msg("duplicate registration, kicking prior connection")
		r.manager.Kick(prior, "replaced")
		// Re-assert: the prior kick cleared the registry entry.
		r.registry.Register(component, connID, version)
	}
	r.manager.SetComponent(connID, component, version)
	metrics.RecordConnection(component.Kind().String())
	metrics.SetHealthScore(string(component), 100)

	logging.Info().
		Str("component", string(component)).
		Str("version", version).
		Str("conn", connID).
		Msg("component registered")

	announce := models.NewMessage("bridge", models.Broadcast, models.TypeVersionAnnounce, map[string]interface{}{
		"component": string(component),
		"version":   version,
	})
	announce.CorrelationID = msg.CorrelationID
	r.Broadcast(announce, component)
}

// handleHeartbeat echoes a heartbeat back to the sender.
func (r *Router) handleHeartbeat(connID string, msg *models.Message) {
	echo := models.NewMessage("bridge", msg.Source, models.TypeHeartbeat, map[string]interface{}{
		"received": msg.ID,
	})
	echo.CorrelationID = msg.CorrelationID
	r.sendFrame(connID, echo)
	r.manager.RecordSuccess(connID)
}

// broadcast fans the message out to every registered component except the
// origin. Failed sends enqueue DLQ letters.
func (r *Router) broadcast(msg *models.Message, exclude models.ComponentID) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("msg", msg.ID).Msg("broadcast marshal failed")
		return
	}

	recipients := 0
	for _, info := range r.registry.Components() {
		if info.Component == exclude {
			continue
		}
		if r.manager.Send(info.ConnID, frame) {
			recipients++
		} else {
			r.letters.Enqueue(*msg, info.Component, ReasonQueueFull)
		}
	}
	metrics.BroadcastFanout.Observe(float64(recipients))
}

// Broadcast sends a hub-origin message to every registered component except
// exclude (pass "" to reach everyone). Used by the doctor manager for death
// notices and by register for version.announce.
func (r *Router) Broadcast(msg *models.Message, exclude models.ComponentID) {
	r.log.Push(*msg)
	r.broadcast(msg, exclude)
}

// deliver routes a point-to-point message through the target's breaker.
// Returns true when the frame reached the target's send queue.
func (r *Router) deliver(msg *models.Message) bool {
	target := string(msg.Target)

	done, err := r.breakers.Allow(target)
	if err != nil {
		r.letters.Enqueue(*msg, msg.Target, ReasonCircuitOpen)
		metrics.RecordRejection("circuit_open")
		return false
	}

	connID, ok := r.registry.Resolve(msg.Target)
	if !ok {
		done(false)
		r.errWindow.IncrementOne()
		r.letters.Enqueue(*msg, msg.Target, ReasonTargetNotConnected)
		return false
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		done(false)
		logging.Error().Err(err).Str("msg", msg.ID).Msg("marshal failed")
		return false
	}

	if !r.manager.Send(connID, frame) {
		done(false)
		r.errWindow.IncrementOne()
		r.letters.Enqueue(*msg, msg.Target, ReasonQueueFull)
		return false
	}

	done(true)
	r.okWindow.IncrementOne()
	return true
}

// RetryDeadLetters attempts redelivery of every letter whose backoff has
// elapsed. Successful redeliveries are removed from the queue; failures are
// re-enqueued, advancing their attempt counters. Returns the number
// redelivered.
func (r *Router) RetryDeadLetters() int {
	redelivered := 0
	for _, letter := range r.letters.PendingRetries() {
		msg := letter.Message
		if r.deliver(&msg) {
			r.letters.Remove(msg.ID, letter.Target)
			metrics.RecordDLQRetry(true)
			redelivered++
		} else {
			metrics.RecordDLQRetry(false)
		}
	}
	return redelivered
}

// Reply sends a hub-origin message directly to a connection, bypassing
// routing. Inline handlers use it to answer the requester.
func (r *Router) Reply(connID string, msg *models.Message) {
	r.log.Push(*msg)
	r.sendFrame(connID, msg)
}

// sendError sends a structured error frame to a connection.
func (r *Router) sendError(connID, text string) {
	r.sendErrorPayload(connID, models.ErrorPayload(text))
}

func (r *Router) sendErrorPayload(connID string, payload map[string]interface{}) {
	msg := models.NewMessage("bridge", "", models.TypeError, payload)
	if conn := r.manager.get(connID); conn != nil {
		if component := conn.Component(); component != "" {
			msg.Target = component
		}
	}
	r.sendFrame(connID, msg)
}

func (r *Router) sendFrame(connID string, msg *models.Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = r.manager.Send(connID, frame)
}
