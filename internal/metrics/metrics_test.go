// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// TestRecordRouting tests routing metric recording
func TestRecordRouting(t *testing.T) {
	tests := []struct {
		name     string
		msgType  string
		outcome  string
		duration time.Duration
	}{
		{
			name:     "fast delivered command",
			msgType:  "frank.command",
			outcome:  "delivered",
			duration: 150 * time.Microsecond,
		},
		{
			name:     "broadcast status",
			msgType:  "status.update",
			outcome:  "broadcast",
			duration: 2 * time.Millisecond,
		},
		{
			name:     "inline ping",
			msgType:  "ping",
			outcome:  "inline",
			duration: 20 * time.Microsecond,
		},
		{
			name:     "failed delivery",
			msgType:  "test.plan",
			outcome:  "failed",
			duration: 5 * time.Millisecond,
		},
		{
			name:     "slow routing over a second",
			msgType:  "frank.result",
			outcome:  "delivered",
			duration: 1200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Record the routing - should not panic
			RecordRouting(tt.msgType, tt.outcome, tt.duration)
		})
	}
}

// TestRecordRejection tests rejection reason recording
func TestRecordRejection(t *testing.T) {
	reasons := []string{
		"rate_limited", "shed", "oversize", "parse",
		"schema", "signature", "duplicate", "version",
	}

	for _, reason := range reasons {
		t.Run("reason_"+reason, func(t *testing.T) {
			RecordRejection(reason)
		})
	}
}

// TestRecordRejection_GatheredValue verifies rejections land in the counter vec
func TestRecordRejection_GatheredValue(t *testing.T) {
	before := testutil.ToFloat64(MessagesRejected.WithLabelValues("gather_probe"))

	RecordRejection("gather_probe")
	RecordRejection("gather_probe")
	RecordRejection("gather_probe")

	after := testutil.ToFloat64(MessagesRejected.WithLabelValues("gather_probe"))
	if diff := after - before; diff != 3 {
		t.Errorf("counter delta = %v, want 3", diff)
	}
}

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode string
		duration   time.Duration
	}{
		{
			name:       "successful GET request",
			method:     "GET",
			endpoint:   "/api/components",
			statusCode: "200",
			duration:   5 * time.Millisecond,
		},
		{
			name:       "successful POST broadcast",
			method:     "POST",
			endpoint:   "/api/broadcast",
			statusCode: "200",
			duration:   15 * time.Millisecond,
		},
		{
			name:       "unauthorized request",
			method:     "POST",
			endpoint:   "/api/kick",
			statusCode: "401",
			duration:   1 * time.Millisecond,
		},
		{
			name:       "rate limited request",
			method:     "GET",
			endpoint:   "/api/health",
			statusCode: "429",
			duration:   500 * time.Microsecond,
		},
		{
			name:       "internal server error",
			method:     "POST",
			endpoint:   "/api/plan",
			statusCode: "500",
			duration:   250 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordAPIRequest(tt.method, tt.endpoint, tt.statusCode, tt.duration)
		})
	}
}

// TestTrackActiveRequest_RequestLifecycle simulates realistic request lifecycle
func TestTrackActiveRequest_RequestLifecycle(t *testing.T) {
	for i := 0; i < 10; i++ {
		TrackActiveRequest(true)
	}

	for i := 0; i < 5; i++ {
		TrackActiveRequest(false)
	}

	for i := 0; i < 3; i++ {
		TrackActiveRequest(true)
	}

	for i := 0; i < 8; i++ {
		TrackActiveRequest(false)
	}
}

// TestConnectionLifecycleMetrics tests connection register/unregister recording
func TestConnectionLifecycleMetrics(t *testing.T) {
	kinds := []string{"doctor", "igor", "frank", "dashboard", "other"}

	for _, kind := range kinds {
		t.Run("kind_"+kind, func(t *testing.T) {
			RecordConnection(kind)
			RecordDisconnection(kind)
		})
	}
}

// TestHandshakeRejectionMetrics tests pre-upgrade rejection recording
func TestHandshakeRejectionMetrics(t *testing.T) {
	reasons := []string{"draining", "memory", "capacity", "auth"}

	for _, reason := range reasons {
		RecordHandshakeRejection(reason)
	}
}

// TestHealthScoreMetrics tests health score gauge lifecycle
func TestHealthScoreMetrics(t *testing.T) {
	SetHealthScore("igor-main", 100)
	SetHealthScore("igor-main", 85)
	SetHealthScore("igor-main", 40)

	got := testutil.ToFloat64(WSHealthScore.WithLabelValues("igor-main"))
	if got != 40 {
		t.Errorf("health score = %v, want 40", got)
	}

	RemoveHealthScore("igor-main")
}

// TestRecordKick tests kick reason recording
func TestRecordKick(t *testing.T) {
	reasons := []string{"stale", "health", "version", "replaced", "admin"}

	for _, reason := range reasons {
		t.Run("reason_"+reason, func(t *testing.T) {
			RecordKick(reason)
		})
	}
}

// TestCircuitBreakerMetrics tests circuit breaker metric recording
func TestCircuitBreakerMetrics(t *testing.T) {
	cbName := "frank-7001"

	// Test state changes (0=closed, 1=half-open, 2=open)
	CircuitBreakerState.WithLabelValues(cbName).Set(0)
	CircuitBreakerState.WithLabelValues(cbName).Set(2)
	CircuitBreakerState.WithLabelValues(cbName).Set(1)

	// Test request counts
	CircuitBreakerRequests.WithLabelValues(cbName, "success").Inc()
	CircuitBreakerRequests.WithLabelValues(cbName, "failure").Inc()
	CircuitBreakerRequests.WithLabelValues(cbName, "rejected").Inc()

	// Test state transitions
	RecordBreakerTransition(cbName, "closed", "open", 2)
	RecordBreakerTransition(cbName, "open", "half-open", 1)
	RecordBreakerTransition(cbName, "half-open", "closed", 0)

	got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues(cbName))
	if got != 0 {
		t.Errorf("breaker state = %v, want 0 after close", got)
	}
}

// TestDLQMetrics tests DLQ metric recording
func TestDLQMetrics(t *testing.T) {
	categories := []string{"connection", "timeout", "capacity"}

	for _, category := range categories {
		t.Run("category_"+category, func(t *testing.T) {
			RecordDLQEntry(category)
			RecordDLQRemoval(category)

			RecordDLQEntry(category)
			RecordDLQDrop(category)

			RecordDLQEntry(category)
			RecordDLQPermanentFailure(category)
		})
	}
}

// TestRecordDLQRetry tests DLQ retry metric recording
func TestRecordDLQRetry(t *testing.T) {
	tests := []struct {
		name    string
		success bool
	}{
		{"successful retry", true},
		{"failed retry", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordDLQRetry(tt.success)
		})
	}
}

// TestUpdateDLQGauges tests DLQ gauge updates
func TestUpdateDLQGauges(t *testing.T) {
	UpdateDLQGauges(0, 0.0)
	UpdateDLQGauges(10, 300.0)
	UpdateDLQGauges(25, 600.0)

	got := testutil.ToFloat64(DLQEntriesTotal)
	if got != 25 {
		t.Errorf("DLQ entries gauge = %v, want 25", got)
	}
}

// TestDoctorMetrics tests doctor supervision metric recording
func TestDoctorMetrics(t *testing.T) {
	DoctorChildren.Set(3)
	DoctorChildren.Inc()
	DoctorChildren.Dec()

	DoctorSpawns.WithLabelValues("ok").Inc()
	DoctorSpawns.WithLabelValues("port_exhausted").Inc()
	DoctorSpawns.WithLabelValues("exec_failed").Inc()

	DoctorDeaths.WithLabelValues("clean").Inc()
	DoctorDeaths.WithLabelValues("crash").Inc()
	DoctorDeaths.WithLabelValues("killed").Inc()

	DoctorShutdownDuration.Observe(0.2)
	DoctorShutdownDuration.Observe(5.5)
}

// TestPlanMetrics tests igor plan execution metric recording
func TestPlanMetrics(t *testing.T) {
	PlansStarted.Inc()

	RecordPlanCompletion("passed", 12*time.Second)
	RecordPlanCompletion("failed", 45*time.Second)
	RecordPlanCompletion("rejected", 100*time.Millisecond)

	actions := []string{"launch", "navigate", "click", "type", "select", "screenshot", "close", "wait", "verify", "execute_intent"}
	for _, action := range actions {
		RecordStep(action, "ok", 200*time.Millisecond)
		RecordStep(action, "failed", 2*time.Second)
		StepRetries.WithLabelValues(action).Inc()
	}

	PendingCommands.Set(4)
	PendingCommands.Dec()
	PendingCommandsExpired.Inc()

	FranksActive.Set(2)
	PlanQueueDepth.Set(1)
}

// TestRecordLightning tests adjudication metric recording
func TestRecordLightning(t *testing.T) {
	tests := []struct {
		name    string
		tier    string
		verdict string
	}{
		{"dumb pass", "dumb", "pass"},
		{"dumb fail", "dumb", "fail"},
		{"claude pass", "claude", "pass"},
		{"claude fail", "claude", "fail"},
		{"claude error", "claude", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordLightning(tt.tier, tt.verdict)
		})
	}
}

// TestExperienceMetrics tests selector ledger metric recording
func TestExperienceMetrics(t *testing.T) {
	SelectorLookups.WithLabelValues("hit").Inc()
	SelectorLookups.WithLabelValues("miss").Inc()
	SelectorLookups.WithLabelValues("known_bad").Inc()

	SelectorRecords.WithLabelValues("success").Inc()
	SelectorRecords.WithLabelValues("failure").Inc()
}

// TestPressureMetrics tests memory pressure gauge updates
func TestPressureMetrics(t *testing.T) {
	MemoryPressureLevel.Set(0)
	MemoryPressureLevel.Set(1)
	MemoryPressureLevel.Set(2)

	ProcessRSSBytes.Set(256 << 20)
	LoadShedDrops.Inc()
}

// TestConcurrentMetricRecording tests thread safety of metric recording
func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	numGoroutines := 50
	operationsPerGoroutine := 50

	// Test concurrent routing recording
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				RecordRouting("frank.command", "delivered", time.Duration(j)*time.Microsecond)
			}
		}(i)
	}

	// Test concurrent API request recording
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				RecordAPIRequest("GET", "/api/health", "200", time.Duration(j)*time.Millisecond)
			}
		}(i)
	}

	// Test concurrent DLQ recording
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				RecordDLQEntry("connection")
				RecordDLQRetry(j%2 == 0)
				RecordDLQRemoval("connection")
			}
		}(i)
	}

	// Test concurrent health score updates
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				SetHealthScore("concurrent-component", 100-j%100)
			}
		}(i)
	}

	wg.Wait()
}

// TestMetricsRegistration verifies all metrics are properly registered
func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		RoutingDuration,
		MessagesRouted,
		MessagesRejected,
		MessagesDeduplicated,
		BroadcastFanout,
		WSConnections,
		WSConnectionsTotal,
		WSHandshakeRejections,
		WSMessagesSent,
		WSMessagesReceived,
		WSSendQueueDrops,
		WSKicks,
		WSHealthScore,
		WSErrors,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerTransitions,
		DLQEntriesTotal,
		DLQEntriesByCategory,
		DLQMessagesAdded,
		DLQMessagesRemoved,
		DLQMessagesDropped,
		DLQMessagesFailed,
		DLQRetryAttempts,
		DLQRetrySuccesses,
		DLQRetryFailures,
		DLQOldestEntryAge,
		RateLimitHits,
		LoadShedDrops,
		MemoryPressureLevel,
		ProcessRSSBytes,
		DoctorChildren,
		DoctorSpawns,
		DoctorDeaths,
		DoctorShutdownDuration,
		PlansStarted,
		PlansCompleted,
		PlanDuration,
		StepsExecuted,
		StepRetries,
		StepDuration,
		PendingCommands,
		PendingCommandsExpired,
		LightningCalls,
		HelperToolInvocations,
		FranksActive,
		PlanQueueDepth,
		SelectorLookups,
		SelectorRecords,
		ReportsStored,
		ScreenshotsStored,
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveRequests,
		AppInfo,
		AppUptime,
	}

	// Verify each metric can be described
	for _, m := range metrics {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		// Should have at least one descriptor
		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("Metric has no descriptors")
		}
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	RecordRouting("gather.test", "delivered", time.Millisecond)
	RecordAPIRequest("GET", "/gather-test", "200", time.Millisecond)

	// Verify we can lint the metrics (checks for consistency issues)
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}

// TestGatheredFamilies decodes gathered metric families and checks shape
func TestGatheredFamilies(t *testing.T) {
	RecordRouting("family.test", "delivered", 3*time.Millisecond)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	var routed, durations *dto.MetricFamily
	for _, mf := range families {
		switch mf.GetName() {
		case "hub_messages_routed_total":
			routed = mf
		case "hub_routing_duration_seconds":
			durations = mf
		}
	}

	if routed == nil {
		t.Fatal("hub_messages_routed_total not found in gathered families")
	}
	if routed.GetType() != dto.MetricType_COUNTER {
		t.Errorf("hub_messages_routed_total type = %v, want COUNTER", routed.GetType())
	}
	found := false
	for _, m := range routed.GetMetric() {
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["type"] == "family.test" && labels["outcome"] == "delivered" {
			found = true
			if m.GetCounter().GetValue() < 1 {
				t.Errorf("counter value = %v, want >= 1", m.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Error("recorded series not present in hub_messages_routed_total")
	}

	if durations == nil {
		t.Fatal("hub_routing_duration_seconds not found in gathered families")
	}
	if durations.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("hub_routing_duration_seconds type = %v, want HISTOGRAM", durations.GetType())
	}
}

// Benchmark tests for metrics performance

func BenchmarkRecordRouting(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordRouting("frank.command", "delivered", 150*time.Microsecond)
	}
}

func BenchmarkRecordRejection(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordRejection("rate_limited")
	}
}

func BenchmarkRecordAPIRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAPIRequest("GET", "/api/health", "200", 5*time.Millisecond)
	}
}

func BenchmarkSetHealthScore(b *testing.B) {
	for i := 0; i < b.N; i++ {
		SetHealthScore("bench-component", 100)
	}
}

func BenchmarkRecordStep(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordStep("click", "ok", 50*time.Millisecond)
	}
}
