// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hclerval/galvanic/internal/api"
	"github.com/hclerval/galvanic/internal/breaker"
	"github.com/hclerval/galvanic/internal/models"
)

type httpFixture struct {
	handler  http.Handler
	engine   *Engine
	stub     *execStub
	pool     *Pool
	siblings *Siblings
	breakers *breaker.Registry
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()

	stub := &execStub{}
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, ResetTimeout: time.Minute})
	engine := NewEngine(EngineConfig{
		Component:   "igor-main",
		Executor:    "frank-main",
		StepTimeout: 500 * time.Millisecond,
	}, stub, NewPendingMap(), breakers, NewLightning(3, nil), nil)
	stub.engine = engine

	client := NewClient(ClientConfig{URL: "ws://localhost:0/ws", Component: "igor-main"})
	pool := NewPool(PoolConfig{
		Binary:    "/bin/sh",
		Args:      []string{"-c", "sleep 30"},
		HubURL:    "ws://localhost:0/ws",
		MaxFranks: 2,
		KillGrace: time.Second,
	}, stub)
	siblings := NewSiblings(SiblingConfig{
		Binary:      "/bin/sh",
		Args:        []string{"-c", "sleep 30"},
		HubURL:      "ws://localhost:0/ws",
		BasePort:    9400,
		MaxSiblings: 2,
		KillGrace:   time.Second,
	}, stub)
	t.Cleanup(func() {
		pool.KillAll()
		for _, w := range siblings.List() {
			_ = siblings.Kill(w.ID)
		}
	})

	server := NewHTTPServer(engine, client, pool, siblings, breakers)
	return &httpFixture{
		handler:  server.Routes(),
		engine:   engine,
		stub:     stub,
		pool:     pool,
		siblings: siblings,
		breakers: breakers,
	}
}

func (f *httpFixture) request(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, api.APIResponse) {
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

	var envelope api.APIResponse
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	}
	return rec, envelope
}

func payloadField(t *testing.T, envelope api.APIResponse, key string) interface{} {
	t.Helper()
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", envelope.Data)
	}
	return data[key]
}

func TestHTTPStatusSnapshot(t *testing.T) {
	f := newHTTPFixture(t)

	rec, envelope := f.request(t, http.MethodGet, "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "component"); got != "igor-main" {
		t.Fatalf("component = %v", got)
	}
	if got := payloadField(t, envelope, "connected"); got != false {
		t.Fatalf("connected = %v", got)
	}
	if got := payloadField(t, envelope, "executing"); got != false {
		t.Fatalf("executing = %v", got)
	}
}

func TestHTTPSubmitPlan(t *testing.T) {
	f := newHTTPFixture(t)
	f.stub.respond = browserEcho

	rec, envelope := f.request(t, http.MethodPost, "/plan", map[string]interface{}{
		"id": "hp1",
		"steps": []interface{}{
			map[string]interface{}{"action": "navigate", "params": map[string]interface{}{"url": "https://example.test"}},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "planId"); got != "hp1" {
		t.Fatalf("planId = %v", got)
	}

	done := f.stub.waitFor(t, models.TypePlanCompleted, 2*time.Second)
	if success, _ := done.Payload["success"].(bool); !success {
		t.Fatalf("plan.completed payload = %v", done.Payload)
	}
	if done.Target != models.Broadcast {
		t.Fatalf("lifecycle target = %s", done.Target)
	}
}

func TestHTTPSubmitPlanRejections(t *testing.T) {
	f := newHTTPFixture(t)

	rec, _ := f.request(t, http.MethodPost, "/plan", map[string]interface{}{
		"steps": []interface{}{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d", rec.Code)
	}

	rec, _ = f.request(t, http.MethodPost, "/plan", map[string]interface{}{
		"id": "hp2",
		"steps": []interface{}{
			map[string]interface{}{"action": "teleport"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("disallowed verb status = %d", rec.Code)
	}
}

func TestHTTPSubmitPlanConflict(t *testing.T) {
	f := newHTTPFixture(t)

	slow := map[string]interface{}{
		"id": "hp3",
		"steps": []interface{}{
			map[string]interface{}{"action": "wait", "params": map[string]interface{}{"ms": 300}},
		},
	}
	rec, _ := f.request(t, http.MethodPost, "/plan", slow)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", rec.Code)
	}

	rec, envelope := f.request(t, http.MethodPost, "/plan", map[string]interface{}{
		"id": "hp4",
		"steps": []interface{}{
			map[string]interface{}{"action": "wait"},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second status = %d", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != api.ErrCodeConflict {
		t.Fatalf("error = %+v", envelope.Error)
	}

	f.stub.waitFor(t, models.TypePlanCompleted, 2*time.Second)
}

func TestHTTPExecuteStep(t *testing.T) {
	f := newHTTPFixture(t)
	f.stub.respond = browserEcho

	rec, envelope := f.request(t, http.MethodPost, "/execute", map[string]interface{}{
		"action": "click",
		"params": map[string]interface{}{"selector": "#submit"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "success"); got != true {
		t.Fatalf("success = %v", got)
	}

	rec, _ = f.request(t, http.MethodPost, "/execute", map[string]interface{}{
		"action": "teleport",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown verb status = %d", rec.Code)
	}

	rec, _ = f.request(t, http.MethodPost, "/execute", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing action status = %d", rec.Code)
	}
}

func TestHTTPFrankLifecycle(t *testing.T) {
	f := newHTTPFixture(t)

	rec, envelope := f.request(t, http.MethodPost, "/franks", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d", rec.Code)
	}
	frank, ok := payloadField(t, envelope, "frank").(map[string]interface{})
	if !ok {
		t.Fatalf("frank = %v", envelope.Data)
	}
	id, _ := frank["id"].(string)
	if id == "" {
		t.Fatalf("frank = %v", frank)
	}

	rec, envelope = f.request(t, http.MethodGet, "/franks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if total, _ := payloadField(t, envelope, "total").(float64); total != 1 {
		t.Fatalf("total = %v", total)
	}

	rec, _ = f.request(t, http.MethodPost, "/franks/"+id+"/execute", map[string]interface{}{
		"tool": "frank_extract_table",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("execute status = %d", rec.Code)
	}

	// The task never completes, so the executor stays busy.
	rec, _ = f.request(t, http.MethodPost, "/franks/"+id+"/execute", map[string]interface{}{
		"tool": "frank_extract_table",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("busy status = %d", rec.Code)
	}

	rec, _ = f.request(t, http.MethodPost, "/franks/frank-404/kill", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("kill unknown status = %d", rec.Code)
	}

	rec, _ = f.request(t, http.MethodPost, "/franks/"+id+"/kill", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("kill status = %d", rec.Code)
	}
}

func TestHTTPQueueWithoutExecutors(t *testing.T) {
	f := newHTTPFixture(t)

	rec, envelope := f.request(t, http.MethodPost, "/queue", map[string]interface{}{
		"tool": "frank_check_popup",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", rec.Code)
	}
	if taskID, _ := payloadField(t, envelope, "taskId").(string); taskID == "" {
		t.Fatal("no task id")
	}

	rec, envelope = f.request(t, http.MethodGet, "/queue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if depth, _ := payloadField(t, envelope, "depth").(float64); depth != 1 {
		t.Fatalf("depth = %v", depth)
	}
}

func TestHTTPSiblingSpawnValidation(t *testing.T) {
	f := newHTTPFixture(t)

	rec, _ := f.request(t, http.MethodPost, "/igors", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing route status = %d", rec.Code)
	}

	rec, envelope := f.request(t, http.MethodPost, "/igors", map[string]interface{}{
		"routeId":   "checkout",
		"routeName": "Checkout flow",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d", rec.Code)
	}
	igor, ok := payloadField(t, envelope, "igor").(map[string]interface{})
	if !ok {
		t.Fatalf("igor = %v", envelope.Data)
	}
	if id, _ := igor["id"].(string); id == "" {
		t.Fatalf("igor = %v", igor)
	}

	rec, _ = f.request(t, http.MethodPost, "/igors/igor-404/kill", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("kill unknown status = %d", rec.Code)
	}
}

func TestHTTPCircuitReset(t *testing.T) {
	f := newHTTPFixture(t)

	// No breaker exists yet for the executor.
	rec, _ := f.request(t, http.MethodPost, "/circuit/reset", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("reset without breaker status = %d", rec.Code)
	}

	done, err := f.breakers.Allow("frank-main")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	done(false)

	rec, envelope := f.request(t, http.MethodGet, "/circuit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("circuit status = %d", rec.Code)
	}
	circuits, ok := payloadField(t, envelope, "circuits").([]interface{})
	if !ok || len(circuits) != 1 {
		t.Fatalf("circuits = %v", payloadField(t, envelope, "circuits"))
	}

	rec, envelope = f.request(t, http.MethodPost, "/circuit/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "reset"); got != "frank-main" {
		t.Fatalf("reset = %v", got)
	}
}

func TestHTTPLightningControls(t *testing.T) {
	f := newHTTPFixture(t)

	rec, envelope := f.request(t, http.MethodPost, "/lightning/strike", map[string]interface{}{
		"reason": "operator request",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("strike status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "mode"); got != string(ModeClaude) {
		t.Fatalf("mode = %v", got)
	}

	rec, envelope = f.request(t, http.MethodGet, "/lightning", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status status = %d", rec.Code)
	}
	status, ok := payloadField(t, envelope, "status").(map[string]interface{})
	if !ok || status["mode"] != string(ModeClaude) {
		t.Fatalf("status = %v", status)
	}

	rec, envelope = f.request(t, http.MethodPost, "/lightning/powerdown", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("powerdown status = %d", rec.Code)
	}
	if got := payloadField(t, envelope, "mode"); got != string(ModeDumb) {
		t.Fatalf("mode = %v", got)
	}

	rec, _ = f.request(t, http.MethodPost, "/lightning/think", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("think without prompt status = %d", rec.Code)
	}

	rec, envelope = f.request(t, http.MethodPost, "/lightning/think", map[string]interface{}{
		"prompt": "why does the selector keep missing",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("think status = %d", rec.Code)
	}
	if response, _ := payloadField(t, envelope, "response").(string); response == "" {
		t.Fatal("empty think response")
	}

	rec, envelope = f.request(t, http.MethodGet, "/lightning/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	history, ok := payloadField(t, envelope, "history").([]interface{})
	if !ok || len(history) != 1 {
		t.Fatalf("history = %v", payloadField(t, envelope, "history"))
	}
}

func TestHTTPToolsProxy(t *testing.T) {
	f := newHTTPFixture(t)
	f.stub.respond = func(msg *models.Message) *models.Message {
		switch msg.Type {
		case models.TypeToolList:
			return models.NewMessage("frank-main", "igor-main", models.TypeToolListed,
				catalogPayload("frank_find_selector"))
		case models.TypeToolInvoke:
			return models.NewMessage("frank-main", "igor-main", models.TypeToolInvoked,
				map[string]interface{}{"foundSelector": "#better"})
		}
		return nil
	}

	rec, envelope := f.request(t, http.MethodGet, "/tools", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tools status = %d", rec.Code)
	}
	tools, ok := payloadField(t, envelope, "tools").([]interface{})
	if !ok || len(tools) != 1 {
		t.Fatalf("tools = %v", payloadField(t, envelope, "tools"))
	}

	rec, envelope = f.request(t, http.MethodPost, "/tools/frank_find_selector/execute", map[string]interface{}{
		"params": map[string]interface{}{"hint": "submit button"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("invoke status = %d", rec.Code)
	}
	result, ok := payloadField(t, envelope, "result").(map[string]interface{})
	if !ok || result["foundSelector"] != "#better" {
		t.Fatalf("result = %v", payloadField(t, envelope, "result"))
	}
}
