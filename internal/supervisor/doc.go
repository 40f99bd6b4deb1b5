// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package supervisor builds the suture supervision tree that keeps the
// bridge and worker-face processes alive.
//
// The tree has three layers for failure isolation:
//
//   - stores: report writer, experience ledger GC, and the other
//     storage-facing maintenance loops
//   - transport: the WebSocket layer's housekeeping (stale reaping, DLQ
//     retries, dedup sweeps) and, on worker faces, the hub client session
//   - api: the HTTP control surface
//
// A crashing maintenance loop restarts with backoff without taking the
// control surface down, and vice versa. Loop services wrap periodic
// housekeeping functions; HTTP servers get graceful shutdown on context
// cancellation.
package supervisor
