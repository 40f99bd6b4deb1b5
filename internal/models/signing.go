// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package models

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// CanonicalBytes returns the canonical encoding signed by Sign: the JSON
// serialization of every message field except signature, with object keys
// in lexicographic order. JSON marshaling of maps emits keys sorted, so
// a map projection of the envelope yields the canonical form directly,
// including nested payload objects.
func (m *Message) CanonicalBytes() ([]byte, error) {
	projection := map[string]interface{}{
		"id":        m.ID,
		"timestamp": m.Timestamp,
		"source":    string(m.Source),
		"target":    string(m.Target),
		"type":      m.Type,
	}
	if m.Payload != nil {
		projection["payload"] = m.Payload
	}
	if m.Version != "" {
		projection["version"] = m.Version
	}
	if m.CorrelationID != "" {
		projection["correlationId"] = m.CorrelationID
	}

	data, err := json.Marshal(projection)
	if err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return data, nil
}

// Sign computes the hex HMAC-SHA256 of the canonical encoding with the
// shared secret and stores it on the message.
func (m *Message) Sign(secret []byte) error {
	sig, err := m.computeSignature(secret)
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// VerifySignature reports whether the message carries a signature that
// matches the canonical encoding under the shared secret. Comparison is
// constant-time.
func (m *Message) VerifySignature(secret []byte) bool {
	if m.Signature == "" {
		return false
	}
	expected, err := m.computeSignature(secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(m.Signature)) == 1
}

func (m *Message) computeSignature(secret []byte) (string, error) {
	data, err := m.CanonicalBytes()
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
