// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/hclerval/galvanic/internal/logging"
)

// ErrInvalidToken rejects a missing or mismatched bearer token.
var ErrInvalidToken = errors.New("invalid or missing token")

// TokenAuthenticator validates a shared bearer token in constant time.
type TokenAuthenticator struct {
	token []byte
}

// NewTokenAuthenticator creates a bearer-token authenticator.
func NewTokenAuthenticator(token string) (*TokenAuthenticator, error) {
	if token == "" {
		return nil, errors.New("auth token is required for token mode")
	}
	return &TokenAuthenticator{token: []byte(token)}, nil
}

// Validate checks a presented token against the shared secret.
func (a *TokenAuthenticator) Validate(presented string) error {
	if subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// HandshakeAuth builds the WebSocket handshake check for a shared token:
// bearer header preferred, deprecated ?token= fallback accepted. An empty
// token leaves the ingress open.
func HandshakeAuth(token string) func(r *http.Request) error {
	if token == "" {
		return nil
	}
	a := &TokenAuthenticator{token: []byte(token)}
	return func(r *http.Request) error {
		return a.Validate(BearerFromRequest(r))
	}
}

// BearerFromRequest extracts the bearer credential from a request. The
// Authorization header is preferred; the ?token= query parameter survives
// as a deprecated fallback for clients that cannot set headers.
func BearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if token := r.URL.Query().Get("token"); token != "" {
		logging.Warn().
			Str("path", r.URL.Path).
			Msg("token passed via query parameter; use the Authorization header")
		return token
	}
	return ""
}
