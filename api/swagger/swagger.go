package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Site CMS API",
        "description": "Contact inquiries and admin replies for the marketing site",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Contact", "description": "Public submissions and the admin inquiry inbox"}
    ],
    "paths": {
        "/contact": {
            "get": {
                "tags": ["Contact"],
                "summary": "Read actions: list, view, stats, export, attachment",
                "security": [{"BearerAuth": []}],
                "produces": ["application/json", "text/csv", "application/pdf", "application/octet-stream"],
                "parameters": [
                    {"name": "action", "in": "query", "required": true, "type": "string", "enum": ["list", "view", "stats", "export", "attachment"]},
                    {"name": "id", "in": "query", "type": "string", "description": "Inquiry ID (view)"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["", "new", "read", "replied", "archived", "sent", "all"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["created_at", "email", "subject"]},
                    {"name": "order", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "reply_id", "in": "query", "type": "string", "description": "Reply ID (attachment)"},
                    {"name": "token", "in": "query", "type": "string", "description": "Signed download token (attachment)"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Role cannot manage inquiries", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Contact"],
                "summary": "Submit (no action) or write actions: reply, delete_reply, archive, unarchive, delete",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [
                    {"name": "action", "in": "query", "type": "string", "enum": ["reply", "delete_reply", "archive", "unarchive", "delete"]},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ContactPayload"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Storage error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
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
                    "503": {"description": "Database unavailable"}
                }
            }
        }
    },
    "definitions": {
        "ContactPayload": {
            "type": "object",
            "description": "Fields depend on the action: submit uses name/email/phone/subject/message, reply uses inquiry_id/reply_message, the rest use id",
            "properties": {
                "name": {"type": "string", "maxLength": 100},
                "email": {"type": "string", "format": "email"},
                "phone": {"type": "string", "maxLength": 30},
                "subject": {"type": "string", "maxLength": 200},
                "message": {"type": "string", "maxLength": 5000},
                "inquiry_id": {"type": "string", "format": "uuid"},
                "reply_message": {"type": "string"},
                "id": {"type": "string", "format": "uuid"}
            }
        },
        "Inquiry": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "phone": {"type": "string"},
                "subject": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "string", "enum": ["new", "read", "replied", "archived"]},
                "reply_count": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {"type": "object"},
                "message": {"type": "string"},
                "error": {"type": "string"},
                "code": {"type": "string"}
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
