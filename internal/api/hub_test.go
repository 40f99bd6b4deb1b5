// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package api

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/auth"
	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/bridge"
	"github.com/hclerval/galvanic/internal/cache"
	"github.com/hclerval/galvanic/internal/dlq"
	"github.com/hclerval/galvanic/internal/doctor"
	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
	"github.com/hclerval/galvanic/internal/pressure"
	"github.com/hclerval/galvanic/internal/ratelimit"
	"github.com/hclerval/galvanic/internal/report"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// nullHub satisfies doctor.Hub for control-surface tests; death notices go
// nowhere.
type nullHub struct{}

func (nullHub) Broadcast(msg *models.Message, exclude models.ComponentID) {}
func (nullHub) Reply(connID string, msg *models.Message)                  {}

type hubFixture struct {
	server   *HubServer
	handler  http.Handler
	manager  *bridge.Manager
	registry *bridge.Registry
	breakers *breaker.Registry
	letters  *dlq.Queue
	log      *cache.RingLog[models.Message]
	reports  *report.Store
}

func newHubFixture(t *testing.T, mode auth.Mode, token string) *hubFixture {
	t.Helper()

	registry := bridge.NewRegistry()
	manager := bridge.NewManager(bridge.ManagerConfig{SendQueueSize: 8, HealthInitial: 100, HealthFloor: 0}, registry)
	limiter := ratelimit.New(ratelimit.Config{Refill: 100, Burst: 100})
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute})
	seen := cache.NewSeen(64, time.Minute, time.Minute)
	t.Cleanup(seen.Close)
	letters, err := dlq.New(dlq.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("dlq: %v", err)
	}
	log := cache.NewRingLog[models.Message](32)
	monitor := pressure.NewMonitor(0, 0)

	router := bridge.NewRouter(bridge.RouterConfig{MaxMessageSize: 1 << 20},
		manager, registry, limiter, breakers, seen, letters, log, monitor)

	doctors := doctor.NewManager(doctor.Config{MaxChildren: 1, Binary: "/bin/false"}, nullHub{})
	reports := report.NewStore(report.Config{MaxReports: 64, ScreenshotsDir: t.TempDir(), WriteQueueSize: 8})
	t.Cleanup(reports.Close)

	authn, err := auth.New(auth.Config{Mode: mode, Token: token})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	server := NewHubServer(HubDeps{
		Registry: registry,
		Manager:  manager,
		Router:   router,
		Letters:  letters,
		Breakers: breakers,
		Limiter:  limiter,
		Monitor:  monitor,
		Seen:     seen,
		Log:      log,
		Doctors:  doctors,
		Reports:  reports,
		Auth:     authn,
	})
	return &hubFixture{
		server:   server,
		handler:  server.Routes(),
		manager:  manager,
		registry: registry,
		breakers: breakers,
		letters:  letters,
		log:      log,
		reports:  reports,
	}
}

func (f *hubFixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var envelope APIResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	}
	return rec, envelope
}

func dataField(t *testing.T, envelope APIResponse, key string) interface{} {
	t.Helper()
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", envelope.Data)
	}
	return data[key]
}

func TestHealthReportsOK(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, envelope := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
	if got := dataField(t, envelope, "status"); got != "ok" {
		t.Fatalf("status field = %v", got)
	}
}

func TestReadyFalseWhileDraining(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, _ := f.do(t, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pre-drain status = %d", rec.Code)
	}

	f.manager.Drain(10 * time.Millisecond)
	rec, envelope := f.do(t, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("post-drain status = %d", rec.Code)
	}
	if envelope.Success {
		t.Fatal("expected error envelope")
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v", envelope.Error)
	}
}

func TestMessagesHonorsLimit(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")
	for i := 0; i < 10; i++ {
		f.log.Push(*models.NewMessage("doctor-1", "igor-1", "step.started", nil))
	}

	rec, envelope := f.do(t, http.MethodGet, "/messages?limit=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msgs, ok := dataField(t, envelope, "messages").([]interface{})
	if !ok || len(msgs) != 3 {
		t.Fatalf("messages = %v", dataField(t, envelope, "messages"))
	}
	if total, _ := dataField(t, envelope, "total").(float64); total != 10 {
		t.Fatalf("total = %v", total)
	}
}

func TestCircuitsReflectBreakerState(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")
	done, err := f.breakers.Allow("frank-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	done(false)

	rec, envelope := f.do(t, http.MethodGet, "/circuits", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	circuits, ok := dataField(t, envelope, "circuits").([]interface{})
	if !ok || len(circuits) != 1 {
		t.Fatalf("circuits = %v", dataField(t, envelope, "circuits"))
	}
}

func TestAdminKickUnknownConnection(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, envelope := f.do(t, http.MethodPost, "/admin/kick/conn-404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != ErrCodeNotFound {
		t.Fatalf("error = %+v", envelope.Error)
	}
}

func TestAdminCircuitReset(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, _ := f.do(t, http.MethodPost, "/admin/circuit/reset/frank-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown breaker status = %d", rec.Code)
	}

	done, _ := f.breakers.Allow("frank-1")
	done(false)
	rec, envelope := f.do(t, http.MethodPost, "/admin/circuit/reset/frank-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := dataField(t, envelope, "reset"); got != "frank-1" {
		t.Fatalf("reset field = %v", got)
	}
}

func TestDoctorEndpointsUnknownID(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, _ := f.do(t, http.MethodGet, "/doctors/doctor-404", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/doctors/doctor-404/kill", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("kill status = %d", rec.Code)
	}

	rec, envelope := f.do(t, http.MethodGet, "/doctors", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if doctors, ok := dataField(t, envelope, "doctors").([]interface{}); ok && len(doctors) != 0 {
		t.Fatalf("doctors = %v", doctors)
	}
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, _ := f.do(t, http.MethodPost, "/reports", map[string]interface{}{
		"planId":     "plan-7",
		"kind":       "step",
		"stepIndex":  0,
		"success":    true,
		"durationMs": 120,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/reports", map[string]interface{}{"kind": "step"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing planId status = %d", rec.Code)
	}

	rec, envelope := f.do(t, http.MethodGet, "/reports/plan/plan-7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("plan reports status = %d", rec.Code)
	}
	reports, ok := dataField(t, envelope, "reports").([]interface{})
	if !ok || len(reports) != 1 {
		t.Fatalf("reports = %v", dataField(t, envelope, "reports"))
	}

	rec, envelope = f.do(t, http.MethodGet, "/reports/summary/plan-7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	summary, ok := dataField(t, envelope, "summary").(map[string]interface{})
	if !ok {
		t.Fatalf("summary = %v", dataField(t, envelope, "summary"))
	}
	if passed, _ := summary["passed"].(bool); !passed {
		t.Fatalf("summary = %v", summary)
	}
}

func TestScreenshotSubmission(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, _ := f.do(t, http.MethodPost, "/screenshots", map[string]interface{}{
		"planId":    "plan-9",
		"stepIndex": 2,
		"data":      base64.StdEncoding.EncodeToString([]byte("pixels")),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/screenshots", map[string]interface{}{
		"planId":    "plan-9",
		"stepIndex": 2,
		"data":      "not base64!!!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad pixels status = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/screenshots", map[string]interface{}{"stepIndex": 2})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status = %d", rec.Code)
	}
}

func TestTokenModeGuardsStateEndpoints(t *testing.T) {
	f := newHubFixture(t, auth.ModeToken, "hub-secret")

	req := httptest.NewRequest(http.MethodGet, "/components", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/components", nil)
	req.Header.Set("Authorization", "Bearer hub-secret")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rec.Code)
	}

	// Health stays open for monitors.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestDebugStateShape(t *testing.T) {
	f := newHubFixture(t, auth.ModeNone, "")

	rec, envelope := f.do(t, http.MethodGet, "/debug/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, key := range []string{"uptimeMs", "draining", "errorsPerMin", "successPerMin", "pressureLevel", "dlq", "seenCache"} {
		if dataField(t, envelope, key) == nil {
			t.Fatalf("debug state missing %q", key)
		}
	}
}
