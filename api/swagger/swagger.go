package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "AcadPlan Timetable API",
        "description": "Academic timetable allocation service: grid reads, placement validation, greedy generation and group provisioning",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Timetable", "description": "Grid reads, placement validation and generation"},
        {"name": "Groups", "description": "Group provisioning and teacher binding"},
        {"name": "Teachers", "description": "Teacher availability"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain a token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/timetable": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Period timetable grid",
                "parameters": [
                    {"name": "periodId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Period not found"}
                }
            }
        },
        "/api/v1/timetable/validate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Validate a candidate placement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidatePlacementRequest"}}
                ],
                "responses": {
                    "200": {"description": "Validation verdict with every applicable reason", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/assign": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Validate and persist a single placement",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidatePlacementRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Placement conflicts with the live grid"}
                }
            }
        },
        "/api/v1/timetable/clear": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Reset a timetable cell to empty",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClearPlacementRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/generate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Generate a timetable proposal",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Proposal with placed and unplaced sessions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/commit": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Persist a generated proposal",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CommitTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Commit result with per-cell rejections", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Proposal expired or unknown"},
                    "409": {"description": "Storage conflict, retry generation"}
                }
            }
        },
        "/api/v1/timetable/export": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Export the period grid",
                "parameters": [
                    {"name": "periodId", "in": "query", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "404": {"description": "Period not found"}
                }
            }
        },
        "/api/v1/groups/batch": {
            "post": {
                "tags": ["Groups"],
                "summary": "Provision groups with sessions and timetable skeleton",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateGroupBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher capacity exceeded or skeleton already carved"}
                }
            }
        },
        "/api/v1/groups/{id}/teacher": {
            "put": {
                "tags": ["Groups"],
                "summary": "Rebind a group's teacher",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateGroupTeacherRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher capacity exceeded"}
                }
            }
        },
        "/api/v1/groups/{id}": {
            "delete": {
                "tags": ["Groups"],
                "summary": "Deactivate a group and its sessions",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deactivated"}
                }
            }
        },
        "/api/v1/teachers/{id}/availability": {
            "get": {
                "tags": ["Teachers"],
                "summary": "Teacher workload for a period",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "periodId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ValidatePlacementRequest": {
            "type": "object",
            "required": ["sessionId", "blockId", "periodId"],
            "properties": {
                "sessionId": {"type": "string"},
                "blockId": {"type": "string"},
                "periodId": {"type": "string"},
                "roomId": {"type": "string"}
            }
        },
        "ClearPlacementRequest": {
            "type": "object",
            "required": ["entryId"],
            "properties": {
                "entryId": {"type": "string"}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["periodId"],
            "properties": {
                "periodId": {"type": "string"},
                "cycle": {"type": "integer"},
                "seed": {"type": "integer"}
            }
        },
        "CommitTimetableRequest": {
            "type": "object",
            "required": ["proposalId"],
            "properties": {
                "proposalId": {"type": "string"}
            }
        },
        "CreateGroupBatchRequest": {
            "type": "object",
            "required": ["openedCourseId", "shiftId", "count", "seatsPerGroup"],
            "properties": {
                "openedCourseId": {"type": "string"},
                "shiftId": {"type": "string"},
                "teacherId": {"type": "string"},
                "count": {"type": "integer"},
                "seatsPerGroup": {"type": "integer"}
            }
        },
        "UpdateGroupTeacherRequest": {
            "type": "object",
            "properties": {
                "teacherId": {"type": "string"}
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
