// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials rejects a failed Basic authentication.
var ErrInvalidCredentials = errors.New("invalid username or password")

// BasicAuthenticator validates HTTP Basic credentials against a bcrypt
// password hash. The hash is supplied by configuration so the plaintext
// password never lives in the process.
type BasicAuthenticator struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthenticator creates a Basic authenticator from a username and
// a bcrypt hash.
func NewBasicAuthenticator(username, passwordHash string) (*BasicAuthenticator, error) {
	if username == "" {
		return nil, errors.New("username is required for basic mode")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("password hash is not a valid bcrypt hash: %w", err)
	}
	return &BasicAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
	}, nil
}

// HashPassword produces a bcrypt hash suitable for the configuration.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Validate checks an Authorization header's Basic credentials. Returns the
// authenticated username.
func (a *BasicAuthenticator) Validate(authHeader string) (string, error) {
	if !strings.HasPrefix(authHeader, "Basic ") {
		return "", errors.New("authorization header is not Basic")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authHeader, "Basic "))
	if err != nil {
		return "", errors.New("credentials are not valid base64")
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", errors.New("credentials must be username:password")
	}

	// Evaluate both comparisons regardless of the username result.
	usernameMatch := subtle.ConstantTimeCompare([]byte(parts[0]), []byte(a.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(parts[1])) == nil
	if !usernameMatch || !passwordMatch {
		return "", ErrInvalidCredentials
	}
	return parts[0], nil
}

// WWWAuthenticate is the challenge header value for 401 responses.
func (a *BasicAuthenticator) WWWAuthenticate() string {
	return `Basic realm="Galvanic", charset="UTF-8"`
}
