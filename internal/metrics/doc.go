// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring routing performance, connection health,
plan execution, and system pressure.

# Overview

The package provides metrics for:
  - Hub message routing latency and throughput
  - WebSocket connection lifecycle, health scores, and kicks
  - Circuit breaker state transitions per target
  - Dead letter queue depth and retry outcomes
  - Memory pressure and load shedding
  - Doctor child-process supervision
  - Igor plan and step execution, retries, and adjudication

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8787/metrics

# Available Metrics

Routing Metrics:
  - hub_routing_duration_seconds: Message handling latency (histogram)
    Labels: type
    Buckets: .0001 through 1s, tuned for in-memory routing
  - hub_messages_routed_total: Routed messages (counter)
    Labels: type, outcome (delivered, broadcast, inline, failed)
  - hub_messages_rejected_total: Messages rejected before routing (counter)
    Labels: reason (rate_limited, shed, oversize, parse, schema, signature, duplicate, version)
  - hub_broadcast_fanout: Recipients per broadcast (histogram)

Connection Metrics:
  - websocket_connections: Active connections (gauge)
    Labels: kind (doctor, igor, frank, dashboard, other)
  - websocket_health_score: Per-component health score 0-100 (gauge)
    Labels: component
  - websocket_kicks_total: Forced disconnects (counter)
    Labels: reason (stale, health, version, replaced, admin)
  - websocket_send_queue_drops_total: Messages dropped on full send queues (counter)
    Labels: component

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_state_transitions_total: Transitions (counter)
    Labels: name, from_state, to_state

DLQ Metrics:
  - dlq_entries_total: Current queue depth (gauge)
  - dlq_retry_attempts_total / dlq_retry_successes_total / dlq_retry_failures_total
  - dlq_messages_failed_total: Messages that exhausted retries (counter)
  - dlq_oldest_entry_age_seconds: Age of the oldest entry (gauge)

Igor Metrics:
  - igor_plans_started_total / igor_plans_completed_total (labels: outcome)
  - igor_steps_executed_total: Steps executed (labels: action, outcome)
  - igor_step_retries_total: Retry attempts per action verb
  - igor_pending_commands: Commands awaiting executor responses (gauge)
  - igor_lightning_calls_total: Adjudications (labels: tier, verdict)

# Usage Example

Basic setup in main.go:

	import (
	    "github.com/hclerval/galvanic/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())

	    metrics.RecordRouting("frank.command", "delivered", 180*time.Microsecond)
	    metrics.RecordConnection("igor")
	    metrics.SetHealthScore("igor-main", 100)
	}

Example PromQL queries:

	# Routing p99 latency
	histogram_quantile(0.99, rate(hub_routing_duration_seconds_bucket[5m]))

	# Rejection rate by reason
	sum by (reason) (rate(hub_messages_rejected_total[5m]))

	# Components with degraded health
	websocket_health_score < 50

	# Plans failing per minute
	rate(igor_plans_completed_total{outcome="failed"}[1m]) * 60

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:

  - Component labels are bounded by the connected population, which the hub caps
  - Rejection reasons and outcomes are fixed constants
  - Step action labels are limited to the plan verb vocabulary
  - Correlation and message IDs are never used as labels
*/
package metrics
