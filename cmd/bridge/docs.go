// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package main provides the Galvanic bridge hub server
//
// The bridge is the central routing and supervision hub of a Galvanic
// deployment. Every supervisor, worker face, and executor connects to it
// over a single WebSocket and the bridge routes, deduplicates, and
// broadcasts messages between them.
//
// @title Galvanic Bridge API
// @version 1.0
// @description Central routing and supervision hub for distributed test orchestration
// @description
// @description ## Features
// @description
// @description - **Message Routing**: Targeted delivery, broadcast fan-out, and duplicate suppression
// @description - **Dead Letter Queue**: Undeliverable messages are retried with exponential backoff
// @description - **Circuit Breakers**: Per-component breakers shed load from failing executors
// @description - **Connection Health**: Heartbeat scoring with stale-connection reaping
// @description - **Child Supervision**: Spawn and supervise doctor processes from the API
// @description - **Report Store**: Step reports and screenshots collected from the fleet
// @description
// @description ## Authentication
// @description
// @description The control surface supports none, token, basic, and jwt modes via AUTH_MODE.
// @description Token mode expects `Authorization: Bearer <token>`; jwt mode adds role
// @description enforcement on admin routes.
// @description
// @description ## Rate Limiting
// @description
// @description Health endpoints allow 1000 requests/minute per IP, read endpoints 300,
// @description and admin endpoints 60.
// @description
// @description ## Error Responses
// @description
// @description All error responses follow this format:
// @description ```json
// @description {
// @description   "success": false,
// @description   "error": {
// @description     "code": "ERROR_CODE",
// @description     "message": "Human-readable error message"
// @description   },
// @description   "meta": {
// @description     "requestId": "…",
// @description     "timestamp": "2026-01-21T12:34:56Z"
// @description   }
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/hclerval/galvanic
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8085
// @BasePath /
// @schemes http
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token (token or jwt auth mode)
package main
