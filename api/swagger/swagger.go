package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Case API",
        "description": "Student case tracking and automated case alerts",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Alerts", "description": "Automated case alert runs"},
        {"name": "Cases", "description": "Student case workflow"},
        {"name": "System", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/alerts/run": {
            "post": {
                "tags": ["Alerts"],
                "summary": "Run case alert rules",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "courseId", "in": "query", "type": "string", "description": "Restrict the run to one course"},
                    {"name": "reminders", "in": "query", "type": "string", "enum": ["0", "1"], "description": "Also send stale case reminders"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RunResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases": {
            "get": {
                "tags": ["Cases"],
                "summary": "List cases",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "source", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "assigneeId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Cases"],
                "summary": "Create manual case",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/summary": {
            "get": {
                "tags": ["Cases"],
                "summary": "Active case counts by status and category",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/export": {
            "get": {
                "tags": ["Cases"],
                "summary": "Export cases",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/cases/{id}": {
            "get": {
                "tags": ["Cases"],
                "summary": "Get case",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Cases"],
                "summary": "Update case",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{id}/replies": {
            "get": {
                "tags": ["Cases"],
                "summary": "List case replies",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Cases"],
                "summary": "Reply to case",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{id}/checklist": {
            "post": {
                "tags": ["Cases"],
                "summary": "Add checklist item",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{id}/checklist/{itemId}": {
            "patch": {
                "tags": ["Cases"],
                "summary": "Toggle checklist item",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "itemId", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/cases/{id}/watchers": {
            "post": {
                "tags": ["Cases"],
                "summary": "Add watcher",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["System"],
                "summary": "Runtime metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RunResult": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "scanned": {"type": "integer"},
                "created": {"type": "integer"},
                "reminders": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
