// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
)

// Mode selects how the control surface authenticates.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeToken Mode = "token"
	ModeBasic Mode = "basic"
	ModeJWT   Mode = "jwt"
)

// RoleAdmin is granted to identities authenticated by shared secret; only
// jwt mode carries finer-grained roles.
const RoleAdmin = "admin"

// Identity is the authenticated principal attached to the request context.
type Identity struct {
	Username string
	Role     string
}

type identityKey struct{}

// Config assembles one Authenticator.
type Config struct {
	Mode Mode

	// Token serves mode "token".
	Token string

	// Username and PasswordHash (bcrypt) serve mode "basic".
	Username     string
	PasswordHash string

	// JWTSecret and SessionTimeout serve mode "jwt".
	JWTSecret      string
	SessionTimeout time.Duration
}

// Authenticator validates requests under the configured mode. It serves
// both the HTTP control surface and the WebSocket handshake.
type Authenticator struct {
	mode  Mode
	token *TokenAuthenticator
	basic *BasicAuthenticator
	jwt   *JWTAuthenticator
}

// New builds an Authenticator. Mode "none" is accepted with a logged
// warning; it has no place outside local development.
func New(cfg Config) (*Authenticator, error) {
	a := &Authenticator{mode: cfg.Mode}
	var err error
	switch cfg.Mode {
	case ModeNone, "":
		a.mode = ModeNone
		logging.Warn().Msg("control surface authentication is disabled")
	case ModeToken:
		a.token, err = NewTokenAuthenticator(cfg.Token)
	case ModeBasic:
		a.basic, err = NewBasicAuthenticator(cfg.Username, cfg.PasswordHash)
	case ModeJWT:
		a.jwt, err = NewJWTAuthenticator(cfg.JWTSecret, cfg.SessionTimeout)
	default:
		err = fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Mode returns the configured mode.
func (a *Authenticator) Mode() Mode {
	return a.mode
}

// Authenticate validates one request and returns the principal.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	switch a.mode {
	case ModeNone:
		return Identity{Username: "anonymous", Role: RoleAdmin}, nil

	case ModeToken:
		if err := a.token.Validate(BearerFromRequest(r)); err != nil {
			return Identity{}, err
		}
		return Identity{Username: "token", Role: RoleAdmin}, nil

	case ModeBasic:
		username, err := a.basic.Validate(r.Header.Get("Authorization"))
		if err != nil {
			return Identity{}, err
		}
		return Identity{Username: username, Role: RoleAdmin}, nil

	case ModeJWT:
		bearer := BearerFromRequest(r)
		if bearer == "" {
			return Identity{}, ErrInvalidToken
		}
		claims, err := a.jwt.ValidateToken(bearer)
		if err != nil {
			return Identity{}, err
		}
		return Identity{Username: claims.Username, Role: claims.Role}, nil
	}
	return Identity{}, errors.New("unreachable auth mode")
}

// VerifyRequest is the WebSocket-handshake form: pass or fail, no
// identity.
func (a *Authenticator) VerifyRequest(r *http.Request) error {
	_, err := a.Authenticate(r)
	return err
}

// Middleware rejects unauthenticated requests with 401 and stores the
// identity in the context for authorization downstream.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.Authenticate(r)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("authentication failed")
			if a.mode == ModeBasic {
				w.Header().Set("WWW-Authenticate", a.basic.WWWAuthenticate())
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"unauthorized"}`))
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// WithIdentity stores the principal in a context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext retrieves the principal, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
