// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package models defines the shared wire types spoken by every Galvanic
// component: the Message envelope, component identifiers, the dot-notation
// type vocabulary, HMAC signing, and version compatibility rules.
package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Broadcast is the distinguished target addressing every registered
// component except the sender.
const Broadcast ComponentID = "broadcast"

// componentIDPattern constrains component ids to lowercase DNS-label style
// names: a leading alphanumeric, then up to 63 alphanumerics or hyphens.
var componentIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// Validation errors for inbound frames.
var (
	ErrMissingID        = errors.New("message id is required")
	ErrMissingSource    = errors.New("message source is required")
	ErrMissingTarget    = errors.New("message target is required")
	ErrMissingType      = errors.New("message type is required")
	ErrInvalidComponent = errors.New("invalid component id")
)

// ComponentID identifies a logical peer on the cluster (doctor, igor,
// frank, bridge, or a tool). It is a validated name, never a raw string:
// construct with ParseComponentID or validate with Validate before use.
type ComponentID string

// ParseComponentID validates raw input and returns a typed component id.
func ParseComponentID(raw string) (ComponentID, error) {
	id := ComponentID(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports whether the id is the broadcast sentinel or a
// syntactically valid component name.
func (c ComponentID) Validate() error {
	if c == Broadcast {
		return nil
	}
	if !componentIDPattern.MatchString(string(c)) {
		return fmt.Errorf("%w: %q", ErrInvalidComponent, string(c))
	}
	return nil
}

// IsBroadcast reports whether the id is the broadcast sentinel.
func (c ComponentID) IsBroadcast() bool {
	return c == Broadcast
}

// String returns the raw component name.
func (c ComponentID) String() string {
	return string(c)
}

// ComponentKind is the closed set of peer roles, derived from the id's
// leading label.
type ComponentKind int

const (
	KindOther ComponentKind = iota
	KindBridge
	KindDoctor
	KindIgor
	KindFrank
)

// String returns the lowercase kind name.
func (k ComponentKind) String() string {
	switch k {
	case KindBridge:
		return "bridge"
	case KindDoctor:
		return "doctor"
	case KindIgor:
		return "igor"
	case KindFrank:
		return "frank"
	default:
		return "other"
	}
}

// Kind classifies the component by its leading label. A doctor child
// spawned as "doctor-3" and the singleton "doctor" both classify as
// KindDoctor.
func (c ComponentID) Kind() ComponentKind {
	s := string(c)
	switch {
	case s == "bridge":
		return KindBridge
	case s == "doctor" || hasLabelPrefix(s, "doctor"):
		return KindDoctor
	case s == "igor" || hasLabelPrefix(s, "igor"):
		return KindIgor
	case s == "frank" || hasLabelPrefix(s, "frank"):
		return KindFrank
	default:
		return KindOther
	}
}

func hasLabelPrefix(s, label string) bool {
	return len(s) > len(label)+1 && s[:len(label)] == label && s[len(label)] == '-'
}

// Message is the unit of inter-component communication. Frames on the wire
// are UTF-8 JSON encodings of this envelope.
type Message struct {
	// ID is a collision-resistant unique identifier (UUID v4).
	ID string `json:"id"`

	// Timestamp is the sender's clock in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Source is the originating component.
	Source ComponentID `json:"source"`

	// Target is a component id or the broadcast sentinel.
	Target ComponentID `json:"target"`

	// Type is the dot-notation message type, e.g. "plan.submit".
	Type string `json:"type"`

	// Payload is the opaque structured body. The router never interprets
	// it except for the inline control types.
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Version is the sender's protocol version (leading ISO date).
	Version string `json:"version,omitempty"`

	// CorrelationID threads cause and effect across a run. The hub fills
	// it with a fresh id when absent.
	CorrelationID string `json:"correlationId,omitempty"`

	// Signature is the hex HMAC-SHA256 over the canonical encoding,
	// present when signing is required.
	Signature string `json:"signature,omitempty"`
}

// NewMessage constructs a message with a fresh id and the current
// timestamp. The payload may be nil.
func NewMessage(source, target ComponentID, msgType string, payload map[string]interface{}) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Target:    target,
		Type:      msgType,
		Payload:   payload,
	}
}

// Validate enforces the schema invariants: id, source, target, and type
// present; source and (unless broadcast) target syntactically valid.
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if m.Source == "" {
		return ErrMissingSource
	}
	if m.Target == "" {
		return ErrMissingTarget
	}
	if m.Type == "" {
		return ErrMissingType
	}
	if m.Source.IsBroadcast() {
		return fmt.Errorf("%w: source cannot be broadcast", ErrInvalidComponent)
	}
	if err := m.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := m.Target.Validate(); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	return nil
}

// EnsureCorrelationID fills a missing correlation id with a fresh uuid and
// returns it.
func (m *Message) EnsureCorrelationID() string {
	if m.CorrelationID == "" {
		m.CorrelationID = uuid.New().String()
	}
	return m.CorrelationID
}

// ErrorPayload builds the payload for a structured error frame.
func ErrorPayload(message string) map[string]interface{} {
	return map[string]interface{}{"error": message}
}

// NewErrorMessage constructs an error frame from the bridge to a peer.
func NewErrorMessage(target ComponentID, errText string) *Message {
	return NewMessage("bridge", target, TypeError, ErrorPayload(errText))
}
