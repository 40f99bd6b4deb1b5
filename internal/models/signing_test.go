// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
)

var testSecret = []byte("galvanic-test-secret")

func signedMessage(t *testing.T) *Message {
	t.Helper()
	m := NewMessage("igor", "doctor", TypePlanSubmit, map[string]interface{}{
		"id": "p1",
		"steps": []interface{}{
			map[string]interface{}{"action": "wait", "params": map[string]interface{}{"ms": float64(10)}},
		},
	})
	if err := m.Sign(testSecret); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return m
}

func TestSign_Verifies(t *testing.T) {
	m := signedMessage(t)
	if !m.VerifySignature(testSecret) {
		t.Error("freshly signed message failed verification")
	}
}

func TestVerifySignature_RejectsTamper(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Message)
	}{
		{"payload change", func(m *Message) { m.Payload["id"] = "p2" }},
		{"type change", func(m *Message) { m.Type = TypeStepCompleted }},
		{"target change", func(m *Message) { m.Target = "frank-1" }},
		{"timestamp change", func(m *Message) { m.Timestamp++ }},
		{"signature strip", func(m *Message) { m.Signature = "" }},
		{"signature garbage", func(m *Message) { m.Signature = "deadbeef" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := signedMessage(t)
			tt.mutate(m)
			if m.VerifySignature(testSecret) {
				t.Error("tampered message passed verification")
			}
		})
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	m := signedMessage(t)
	if m.VerifySignature([]byte("other-secret")) {
		t.Error("message verified under the wrong secret")
	}
}

func TestCanonicalBytes_ExcludesSignature(t *testing.T) {
	m := signedMessage(t)

	canonical, err := m.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if bytes.Contains(canonical, []byte("signature")) {
		t.Error("canonical encoding contains the signature field")
	}
}

func TestCanonicalBytes_StableAcrossWireRoundTrip(t *testing.T) {
	m := signedMessage(t)

	// A receiver decodes the frame and re-derives the canonical form; the
	// bytes must match the sender's or verification breaks.
	frame, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want, err := m.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	got, err := decoded.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Errorf("canonical bytes changed across wire round trip:\nsender:   %s\nreceiver: %s", want, got)
	}
	if !decoded.VerifySignature(testSecret) {
		t.Error("decoded message failed verification")
	}
}

func TestCanonicalBytes_SortedKeys(t *testing.T) {
	m := signedMessage(t)
	canonical, err := m.CanonicalBytes()
	if err != nil {
		t.Fatalf("CanonicalBytes() error: %v", err)
	}

	// Top-level keys appear in lexicographic order.
	idIdx := bytes.Index(canonical, []byte(`"id"`))
	payloadIdx := bytes.Index(canonical, []byte(`"payload"`))
	sourceIdx := bytes.Index(canonical, []byte(`"source"`))
	timestampIdx := bytes.Index(canonical, []byte(`"timestamp"`))

	if !(idIdx < payloadIdx && payloadIdx < sourceIdx && sourceIdx < timestampIdx) {
		t.Errorf("canonical keys not sorted: %s", canonical)
	}
}
