// Package docs holds the OpenAPI document served at /swagger.
// Regenerate it from the handler annotations with `swag init -g cmd/edilcloud/main.go`.
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
    "paths": {},
    "securityDefinitions": {
        "Bearer": {
            "description": "Login at /api/auth/login and send 'Bearer ${TOKEN}'",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Edilcloud API",
	Description:      "Backend of Edilcloud, a collaboration platform for construction companies.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

//nolint:gochecknoinits // swag registers the document at init time.
func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
