// Package schemas holds the JSON schemas external systems are validated against.
package schemas

import _ "embed"

// BuildResult is the schema for the CI build notification webhook.
//
//go:embed build_result.schema.json
var BuildResult string
