// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

/*
Package auth authenticates the hub's control surface and WebSocket
handshakes.

Four modes, selected by configuration:

  - none: every request passes; a warning is logged at startup
  - token: a shared bearer token, compared in constant time
  - basic: HTTP Basic with a bcrypt password hash
  - jwt: HS256 tokens carrying a role claim, enforced with RBAC by
    internal/authz

Bearer credentials are read from the Authorization header first; the
?token= query parameter is honored as a deprecated fallback for WebSocket
clients that cannot set headers.
*/
package auth
