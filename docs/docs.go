// Package docs carries the OpenAPI description served under /docs.
// Regenerate swagger.json with `swag init -g cmd/main/main.go -o docs --outputTypes json`.
package docs

import (
	_ "embed"
)

//go:embed swagger.json
var SwaggerJSON []byte
