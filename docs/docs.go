// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

// Package docs ships the swagger document served at /swagger/doc.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "GitHub Repository",
            "url": "https://github.com/hclerval/galvanic/issues"
        },
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Core"],
                "summary": "Hub health",
                "description": "Connection counts, memory pressure, and drain state. Status degrades under warning pressure and while draining.",
                "responses": {
                    "200": {"description": "Health snapshot", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Core"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Ready", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "503": {"description": "Draining or critical pressure", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Core"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "Alive", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/components": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cluster"],
                "summary": "Registered components",
                "responses": {
                    "200": {"description": "Registry and connection snapshot", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/messages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cluster"],
                "summary": "Recent messages",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Message window", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/dlq": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cluster"],
                "summary": "Dead letter queue",
                "responses": {
                    "200": {"description": "Letters and stats", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/circuits": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cluster"],
                "summary": "Circuit breakers",
                "responses": {
                    "200": {"description": "Per-target breaker snapshot", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/rate-limits": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cluster"],
                "summary": "Rate limiter state",
                "responses": {
                    "200": {"description": "Per-key bucket stats", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/debug/state": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Debug"],
                "summary": "Full hub state",
                "responses": {
                    "200": {"description": "Hub state dump", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/admin/kick/{id}": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Kick a connection",
                "parameters": [
                    {"type": "string", "description": "Connection id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Connection kicked", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "No such connection", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/admin/circuit/reset/{name}": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Reset a circuit breaker",
                "parameters": [
                    {"type": "string", "description": "Breaker target name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Breaker reset", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "No breaker for target", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/doctors": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "List doctors",
                "responses": {
                    "200": {"description": "Supervisor children", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "Spawn a doctor",
                "parameters": [
                    {"description": "Spawn parameters", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/api.SpawnDoctorRequest"}}
                ],
                "responses": {
                    "201": {"description": "Child spawned", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "400": {"description": "Invalid body", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "409": {"description": "Doctor limit reached", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/doctors/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "Get a doctor",
                "parameters": [
                    {"type": "string", "description": "Doctor id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Supervisor child", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "No such doctor", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/doctors/{id}/kill": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "Kill a doctor",
                "parameters": [
                    {"type": "string", "description": "Doctor id", "name": "id", "in": "path", "required": true},
                    {"description": "Optional reason", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/api.KillRequest"}}
                ],
                "responses": {
                    "202": {"description": "Kill signaled", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "404": {"description": "No such doctor", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/doctors/kill-all": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Doctors"],
                "summary": "Kill all doctors",
                "parameters": [
                    {"description": "Optional reason", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/api.KillRequest"}}
                ],
                "responses": {
                    "202": {"description": "Kills signaled", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/reports": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Recent reports",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries (default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Report window", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Submit a report",
                "parameters": [
                    {"description": "Report payload (planId required)", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "201": {"description": "Report stored", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "400": {"description": "Missing planId or invalid body", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/reports/plan/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Reports for a plan",
                "parameters": [
                    {"type": "string", "description": "Plan id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Plan reports, oldest first", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/reports/summary/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Plan summary",
                "parameters": [
                    {"type": "string", "description": "Plan id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Plan summary", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        },
        "/screenshots": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Reports"],
                "summary": "Submit a screenshot",
                "parameters": [
                    {"description": "Screenshot payload", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.SubmitScreenshotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Screenshot stored", "schema": {"$ref": "#/definitions/api.APIResponse"}},
                    "400": {"description": "Invalid body or undecodable pixels", "schema": {"$ref": "#/definitions/api.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/api.APIError"},
                "meta": {"$ref": "#/definitions/api.APIMeta"}
            }
        },
        "api.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object"}
            }
        },
        "api.APIMeta": {
            "type": "object",
            "properties": {
                "requestId": {"type": "string"},
                "timestamp": {"type": "string"},
                "durationMs": {"type": "integer"}
            }
        },
        "api.SpawnDoctorRequest": {
            "type": "object",
            "properties": {
                "specialization": {"type": "string"},
                "config": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "api.KillRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "api.SubmitScreenshotRequest": {
            "type": "object",
            "required": ["planId", "data"],
            "properties": {
                "planId": {"type": "string"},
                "stepIndex": {"type": "integer"},
                "data": {"type": "string", "description": "base64 PNG pixels"}
            }
        }
    },
    "tags": [
        {"name": "Core", "description": "Health, readiness, and liveness probes"},
        {"name": "Cluster", "description": "Component registry, message window, DLQ, breakers, and rate limits"},
        {"name": "Doctors", "description": "Supervisor child process management"},
        {"name": "Reports", "description": "Test report and screenshot storage"},
        {"name": "Admin", "description": "Operator interventions: kicks and breaker resets"},
        {"name": "Debug", "description": "Full state dumps for troubleshooting"}
    ]
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8085",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Galvanic Bridge API",
	Description:      "Central routing and supervision hub for the Galvanic test orchestration substrate.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
