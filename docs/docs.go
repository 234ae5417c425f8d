// Package docs holds the OpenAPI description of the run API served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/runs": {
            "get": {
                "description": "Get every run with its current status, newest first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "responses": {
                    "200": {"description": "List of runs", "schema": {"type": "array", "items": {"type": "object", "additionalProperties": true}}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Resolve the run spec against the configured defaults and start the run asynchronously",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Start a run",
                "parameters": [
                    {"description": "Run overrides", "name": "run", "in": "body", "schema": {"$ref": "#/definitions/model.RunSpec"}}
                ],
                "responses": {
                    "202": {"description": "Run accepted", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid run spec", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "description": "Retrieve the spec and status of a run, with its report URL once written",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run details", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid run ID", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "delete": {
                "description": "Delete a run with its errors, progress and logs, and remove its report directory",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Delete run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run deleted", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/errors": {
            "get": {
                "description": "Retrieve the fatal errors recorded while the run executed",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run errors",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run errors", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/logs": {
            "get": {
                "description": "Retrieve the stage log lines of a run, oldest first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run logs",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 100, "description": "Maximum number of lines", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Run logs", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/progress": {
            "get": {
                "description": "Retrieve the start and end of every stage of the run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run progress",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Stage progress", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Run not found", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal server error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/runs/{id}/report.json": {
            "get": {
                "description": "Download the report written when the run completed",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Download run report",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run report", "schema": {"type": "file"}},
                    "404": {"description": "Report not found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "model.RunSpec": {
            "type": "object",
            "properties": {
                "customer_queue": {"type": "string"},
                "data_dir": {"type": "string"},
                "error_queue": {"type": "string"},
                "run_date": {"type": "string"},
                "strict_references": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Reconcile Pipeline API",
	Description:      "Starts reconciliation runs and reads back their status, stage progress, logs and reports.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
