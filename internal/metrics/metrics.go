// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Hub routing throughput and latency
// - WebSocket connection lifecycle and health
// - Circuit breaker state per target component
// - Dead letter queue depth and retry outcomes
// - Doctor child-process supervision
// - Igor plan execution and step retries

var (
	// Hub Routing Metrics
	RoutingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_routing_duration_seconds",
			Help:    "Duration of hub message routing in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"type"},
	)

	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_routed_total",
			Help: "Total number of messages routed by the hub",
		},
		[]string{"type", "outcome"}, // outcome: "delivered", "broadcast", "inline", "failed"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_rejected_total",
			Help: "Total number of messages rejected before routing",
		},
		[]string{"reason"}, // "rate_limited", "shed", "oversize", "parse", "schema", "signature", "duplicate", "version"
	)

	MessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_deduplicated_total",
			Help: "Total number of messages skipped as duplicates",
		},
	)

	BroadcastFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_broadcast_fanout",
			Help:    "Number of recipients per broadcast delivery",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// WebSocket Connection Metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"kind"}, // "doctor", "igor", "frank", "dashboard", "other"
	)

	WSConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections accepted",
		},
		[]string{"kind"},
	)

	WSHandshakeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handshake_rejections_total",
			Help: "Total number of WebSocket handshakes rejected before upgrade",
		},
		[]string{"reason"}, // "draining", "memory", "capacity", "auth"
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSSendQueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_send_queue_drops_total",
			Help: "Total number of messages dropped due to a full send queue",
		},
		[]string{"component"},
	)

	WSKicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_kicks_total",
			Help: "Total number of connections kicked by the hub",
		},
		[]string{"reason"}, // "stale", "health", "version", "replaced", "admin"
	)

	WSHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_health_score",
			Help: "Current health score per connected component (0-100)",
		},
		[]string{"component"},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Dead Letter Queue Metrics
	DLQEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_entries_total",
			Help: "Current number of entries in the Dead Letter Queue",
		},
	)

	DLQEntriesByCategory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_entries_by_category",
			Help: "Current number of DLQ entries by error category",
		},
		[]string{"category"}, // connection, timeout, validation, capacity, circuit, unknown
	)

	DLQMessagesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_added_total",
			Help: "Total number of messages added to the DLQ",
		},
	)

	DLQMessagesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_removed_total",
			Help: "Total number of messages removed from the DLQ (successfully redelivered)",
		},
	)

	DLQMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_dropped_total",
			Help: "Total number of messages evicted from the DLQ (capacity or retention)",
		},
	)

	DLQMessagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_failed_total",
			Help: "Total number of messages that exhausted retries",
		},
	)

	DLQRetryAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_attempts_total",
			Help: "Total number of retry attempts for DLQ messages",
		},
	)

	DLQRetrySuccesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_successes_total",
			Help: "Total number of successful DLQ message retries",
		},
	)

	DLQRetryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_retry_failures_total",
			Help: "Total number of failed DLQ message retries",
		},
	)

	DLQOldestEntryAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_oldest_entry_age_seconds",
			Help: "Age of the oldest entry in the DLQ in seconds",
		},
	)

	// Rate Limiting and Load Shedding Metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"scope"}, // "connection", "endpoint"
	)

	LoadShedDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "load_shed_drops_total",
			Help: "Total number of messages shed under memory pressure",
		},
	)

	MemoryPressureLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_pressure_level",
			Help: "Current memory pressure level (0=normal, 1=warning, 2=critical)",
		},
	)

	ProcessRSSBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_rss_bytes",
			Help: "Resident set size of the process in bytes",
		},
	)

	// Doctor Child Process Metrics
	DoctorChildren = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doctor_children",
			Help: "Current number of child processes managed by the doctor",
		},
	)

	DoctorSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_spawns_total",
			Help: "Total number of child processes spawned",
		},
		[]string{"outcome"}, // "ok", "port_exhausted", "exec_failed"
	)

	DoctorDeaths = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_deaths_total",
			Help: "Total number of child process exits observed",
		},
		[]string{"kind"}, // "clean", "crash", "killed"
	)

	DoctorShutdownDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doctor_shutdown_duration_seconds",
			Help:    "Duration of child process shutdown in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Plan Execution Metrics (Igor)
	PlansStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "igor_plans_started_total",
			Help: "Total number of plans accepted for execution",
		},
	)

	PlansCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igor_plans_completed_total",
			Help: "Total number of plans completed",
		},
		[]string{"outcome"}, // "passed", "failed", "rejected"
	)

	PlanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "igor_plan_duration_seconds",
			Help:    "Duration of plan execution in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	StepsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igor_steps_executed_total",
			Help: "Total number of plan steps executed",
		},
		[]string{"action", "outcome"}, // outcome: "ok", "failed", "skipped"
	)

	StepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igor_step_retries_total",
			Help: "Total number of step retry attempts",
		},
		[]string{"action"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "igor_step_duration_seconds",
			Help:    "Duration of individual step execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	PendingCommands = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igor_pending_commands",
			Help: "Current number of commands awaiting an executor response",
		},
	)

	PendingCommandsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "igor_pending_commands_expired_total",
			Help: "Total number of pending commands abandoned by the sweeper",
		},
	)

	LightningCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igor_lightning_calls_total",
			Help: "Total number of lightning adjudications",
		},
		[]string{"tier", "verdict"}, // tier: "dumb", "claude"; verdict: "pass", "fail", "error"
	)

	HelperToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igor_helper_tool_invocations_total",
			Help: "Total number of helper tool invocations",
		},
		[]string{"tool", "outcome"},
	)

	FranksActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igor_franks_active",
			Help: "Current number of executors in the pool",
		},
	)

	PlanQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igor_plan_queue_depth",
			Help: "Current number of plans waiting for a free slot",
		},
	)

	// Experience Ledger Metrics
	SelectorLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experience_selector_lookups_total",
			Help: "Total number of selector ledger lookups",
		},
		[]string{"result"}, // "hit", "miss", "known_bad"
	)

	SelectorRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "experience_selector_records_total",
			Help: "Total number of selector outcomes recorded",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// Report Store Metrics
	ReportsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_stored_total",
			Help: "Total number of reports persisted",
		},
		[]string{"kind"},
	)

	ScreenshotsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screenshots_stored_total",
			Help: "Total number of screenshots persisted",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordRouting records a routed message and its handling latency
func RecordRouting(msgType, outcome string, duration time.Duration) {
	MessagesRouted.WithLabelValues(msgType, outcome).Inc()
	RoutingDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordRejection records a message rejected before routing
func RecordRejection(reason string) {
	MessagesRejected.WithLabelValues(reason).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordConnection records a connection being registered with the hub
func RecordConnection(kind string) {
	WSConnections.WithLabelValues(kind).Inc()
	WSConnectionsTotal.WithLabelValues(kind).Inc()
}

// RecordDisconnection records a connection leaving the hub
func RecordDisconnection(kind string) {
	WSConnections.WithLabelValues(kind).Dec()
}

// RecordHandshakeRejection records a handshake turned away before upgrade
func RecordHandshakeRejection(reason string) {
	WSHandshakeRejections.WithLabelValues(reason).Inc()
}

// RecordKick records a connection forcibly closed by the hub
func RecordKick(reason string) {
	WSKicks.WithLabelValues(reason).Inc()
}

// SetHealthScore publishes the current health score for a component
func SetHealthScore(component string, score int) {
	WSHealthScore.WithLabelValues(component).Set(float64(score))
}

// RemoveHealthScore drops the health gauge for a departed component
func RemoveHealthScore(component string) {
	WSHealthScore.DeleteLabelValues(component)
}

// RecordDLQEntry records a message being added to the DLQ
func RecordDLQEntry(category string) {
	DLQMessagesAdded.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Inc()
}

// RecordDLQRemoval records a message being successfully removed from the DLQ
func RecordDLQRemoval(category string) {
	DLQMessagesRemoved.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQDrop records a message evicted to make room in a full DLQ
func RecordDLQDrop(category string) {
	DLQMessagesDropped.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQPermanentFailure records a message that exhausted its retries
func RecordDLQPermanentFailure(category string) {
	DLQMessagesFailed.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQRetry records a retry attempt and its outcome
func RecordDLQRetry(success bool) {
	DLQRetryAttempts.Inc()
	if success {
		DLQRetrySuccesses.Inc()
	} else {
		DLQRetryFailures.Inc()
	}
}

// UpdateDLQGauges updates DLQ gauge metrics with current stats
func UpdateDLQGauges(totalEntries int64, oldestEntryAge float64) {
	DLQEntriesTotal.Set(float64(totalEntries))
	DLQOldestEntryAge.Set(oldestEntryAge)
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(name, from, to string, stateValue float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordStep records a plan step execution and its latency
func RecordStep(action, outcome string, duration time.Duration) {
	StepsExecuted.WithLabelValues(action, outcome).Inc()
	StepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordPlanCompletion records a finished plan
func RecordPlanCompletion(outcome string, duration time.Duration) {
	PlansCompleted.WithLabelValues(outcome).Inc()
	PlanDuration.Observe(duration.Seconds())
}

// RecordLightning records an adjudication call
func RecordLightning(tier, verdict string) {
	LightningCalls.WithLabelValues(tier, verdict).Inc()
}
