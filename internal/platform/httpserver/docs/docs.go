// Package docs registers the OpenAPI document served under /swagger/.
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
        "/api/petitions": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["petitions"],
                "summary": "Submit or edit a petition",
                "parameters": [
                    {
                        "description": "petition",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.SubmitPetitionRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SubmitPetitionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}}
                }
            }
        },
        "/api/petitions/{fingerprint_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["petitions"],
                "summary": "Look up the petition submitted by a fingerprint",
                "parameters": [
                    {"type": "string", "description": "browser fingerprint", "name": "fingerprint_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.GetPetitionResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}}
                }
            }
        },
        "/api/admin/petitions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List petitions for moderators",
                "parameters": [
                    {"type": "string", "description": "pending, approved or rejected", "name": "status", "in": "query"},
                    {"type": "string", "description": "id of the last item of the previous page", "name": "cursor", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ListPetitionsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorEnvelope"}}
                }
            }
        },
        "/api/admin/petitions/process-pending": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Run one reconciliation pass over unresolved petitions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ProcessPendingResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorBody": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "details": {"type": "object", "additionalProperties": true}
            }
        },
        "http.ErrorEnvelope": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "error": {"$ref": "#/definitions/http.ErrorBody"},
                "timestamp": {"type": "string"}
            }
        },
        "http.SubmitPetitionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "message": {"type": "string"},
                "organization": {"type": "string"},
                "judge": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "age": {"type": "string"},
                "gender": {"type": "string"},
                "petitionId": {"type": "string"},
                "isEdit": {"type": "boolean"},
                "editId": {"type": "string"}
            }
        },
        "http.SubmitPetitionResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "id": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "http.PetitionDTO": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "message": {"type": "string"},
                "organization": {"type": "string"},
                "judge": {"type": "string"},
                "status": {"type": "string"},
                "ip": {"type": "string"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "http.GetPetitionResponse": {
            "type": "object",
            "properties": {
                "petition": {"$ref": "#/definitions/http.PetitionDTO"}
            }
        },
        "http.ListPetitionsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/http.PetitionDTO"}},
                "hasMore": {"type": "boolean"},
                "cursor": {"type": "string"}
            }
        },
        "http.ProcessPendingResponse": {
            "type": "object",
            "properties": {
                "processedCount": {"type": "integer"},
                "hasMorePending": {"type": "boolean"},
                "approved": {"type": "integer"},
                "rejected": {"type": "integer"},
                "keptPending": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "petitionhub API",
	Description:      "Petition submission, moderation and statistics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
