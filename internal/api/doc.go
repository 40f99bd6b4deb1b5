// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package api is the hub's HTTP control surface.
//
// Routes are served by chi with a standardized JSON envelope
// (success/data/error/meta). Read endpoints mirror the hub's in-memory
// state: component registry, message ring, DLQ, circuit breakers, rate
// limiter, memory pressure. Mutating endpoints (admin kick, circuit reset,
// doctor spawn/kill, report and screenshot submission) sit behind stricter
// HTTP rate limits and, in jwt mode, Casbin RBAC.
package api
