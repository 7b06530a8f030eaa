package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Class Admission API",
        "description": "Capacity-aware class admission and waitlist service",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Enrollments", "description": "Enrollment requests and withdrawal"},
        {"name": "Approvals", "description": "Manual review of pending requests"},
        {"name": "Waitlist", "description": "Waitlist queue management and offers"},
        {"name": "Classes", "description": "Class seat availability"},
        {"name": "Exports", "description": "Roster exports"}
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
                    "200": {"description": "Ready"}
                }
            }
        },
        "/metrics": {
            "get": {
                "summary": "Prometheus metrics",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/v1/enrollments/request": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Request enrollment in a class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RequestEnrollmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already enrolled or duplicate request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/bulk": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a batch of students into one class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkEnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/pending": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List enrollment requests awaiting review",
                "parameters": [
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/{id}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Withdraw an enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/{id}/approve": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Approve a pending enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/enrollments/{id}/reject": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Reject a pending enrollment request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/ReviewPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/seats": {
            "get": {
                "tags": ["Classes"],
                "summary": "Seat availability for a class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Full waitlist roster for a class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Waitlist"],
                "summary": "Add a student to the waitlist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddToWaitlistRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/{studentId}": {
            "delete": {
                "tags": ["Waitlist"],
                "summary": "Remove a student from the waitlist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/{studentId}/position": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Current waitlist position for a student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/{studentId}/probability": {
            "get": {
                "tags": ["Waitlist"],
                "summary": "Estimated enrollment probability for a waitlisted student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/response": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Accept or decline an open seat offer",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/WaitlistResponseRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/process": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Offer open seats to the head of the waitlist",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/waitlist/process-expired": {
            "post": {
                "tags": ["Waitlist"],
                "summary": "Expire lapsed seat offers and promote successors",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/classes/{id}/waitlist/export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a class waitlist roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a generated roster via signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RequestEnrollmentRequest": {
            "type": "object",
            "required": ["student_id", "class_id"],
            "properties": {
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "justification": {"type": "string"},
                "priority": {"type": "integer"}
            }
        },
        "BulkEnrollRequest": {
            "type": "object",
            "required": ["student_ids", "class_id"],
            "properties": {
                "student_ids": {"type": "array", "items": {"type": "string"}},
                "class_id": {"type": "string"}
            }
        },
        "AddToWaitlistRequest": {
            "type": "object",
            "required": ["student_id"],
            "properties": {
                "student_id": {"type": "string"},
                "priority": {"type": "integer"}
            }
        },
        "WaitlistResponseRequest": {
            "type": "object",
            "required": ["student_id", "response"],
            "properties": {
                "student_id": {"type": "string"},
                "response": {"type": "string", "enum": ["accept", "decline"]}
            }
        },
        "ReviewPayload": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "AdmissionResult": {
            "type": "object",
            "properties": {
                "record_id": {"type": "string"},
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "status": {"type": "string"},
                "position": {"type": "integer"},
                "probability": {"type": "number"},
                "note": {"type": "string"}
            }
        },
        "WaitlistStatus": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "student_id": {"type": "string"},
                "position": {"type": "integer"},
                "total": {"type": "integer"},
                "probability": {"type": "number"},
                "notified_at": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "SeatSummary": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "class_name": {"type": "string"},
                "capacity": {"type": "integer"},
                "enrolled": {"type": "integer"},
                "available": {"type": "integer"},
                "waitlisted": {"type": "integer"}
            }
        },
        "ExportResult": {
            "type": "object",
            "properties": {
                "export_id": {"type": "string"},
                "token": {"type": "string"},
                "url": {"type": "string"},
                "format": {"type": "string"},
                "expires_at": {"type": "string"}
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
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
