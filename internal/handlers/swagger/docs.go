// Package swagger registers the gateway's OpenAPI document with the
// swagger UI handler. The spec is maintained by hand; keep it in step
// with the routes in internal/router.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "process is alive"},
                    "503": {"description": "a dependency is degraded"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness probe",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "models are registered and the gateway can route"},
                    "503": {"description": "registry is empty"}
                }
            }
        },
        "/v1/chat/completions": {
            "post": {
                "summary": "Create a chat completion",
                "description": "Routes the request to the best available model by complexity, domain, budget and provider health.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{
                    "name": "request",
                    "in": "body",
                    "required": true,
                    "schema": {"$ref": "#/definitions/ChatRequest"}
                }],
                "responses": {
                    "200": {"description": "completion response in the OpenAI format"},
                    "400": {"description": "malformed body or missing user id"},
                    "402": {"description": "budget exceeded"},
                    "503": {"description": "no healthy model or budget service unavailable"},
                    "502": {"description": "upstream request failed"}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/v1/models": {
            "get": {
                "summary": "List registered models",
                "produces": ["application/json"],
                "parameters": [
                    {"name": "tier", "in": "query", "type": "string", "enum": ["fast", "smart", "reasoning"]},
                    {"name": "domain", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "registry snapshot in registration order"}},
                "security": [{"BearerAuth": []}]
            },
            "post": {
                "summary": "Register or replace a model definition",
                "consumes": ["application/json"],
                "parameters": [{
                    "name": "model",
                    "in": "body",
                    "required": true,
                    "schema": {"$ref": "#/definitions/ModelDefinition"}
                }],
                "responses": {
                    "201": {"description": "definition registered"},
                    "400": {"description": "invalid definition"}
                },
                "security": [{"BearerAuth": []}]
            }
        },
        "/v1/providers/health": {
            "get": {
                "summary": "Circuit breaker state per provider",
                "produces": ["application/json"],
                "responses": {"200": {"description": "provider statuses"}},
                "security": [{"BearerAuth": []}]
            }
        }
    },
    "definitions": {
        "ChatRequest": {
            "type": "object",
            "required": ["messages"],
            "properties": {
                "messages": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "role": {"type": "string"},
                            "content": {"type": "string"}
                        }
                    }
                },
                "user": {"type": "string", "description": "caller identity when unauthenticated"},
                "temperature": {"type": "number"},
                "max_tokens": {"type": "integer"}
            }
        },
        "ModelDefinition": {
            "type": "object",
            "required": ["id", "provider", "tier"],
            "properties": {
                "id": {"type": "string", "example": "azure/gpt-4o"},
                "provider": {"type": "string", "example": "azure"},
                "tier": {"type": "string", "enum": ["fast", "smart", "reasoning"]},
                "cost_per_1k_input": {"type": "number"},
                "cost_per_1k_output": {"type": "number"},
                "is_healthy": {"type": "boolean"},
                "domain": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds the exported spec the UI handler serves.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "arbiter - LLM Routing Gateway",
	Description:      "Tier-aware routing gateway for LLM completion traffic.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
