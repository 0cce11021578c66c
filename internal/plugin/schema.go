// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/holomush/scriptkit/internal/schema"
)

// SchemaID is the $id of the plugin manifest schema.
const SchemaID = "https://holomush.dev/schemas/scriptkit.plugin.schema.json"

var manifestSchema = schema.NewValidator(schema.Document{
	ID:          SchemaID,
	Title:       "scriptkit Plugin Manifest",
	Description: "Schema for plugin.yaml files of out-of-process plugins",
	Type:        &Manifest{},
})

// GenerateSchema returns the plugin manifest JSON Schema.
func GenerateSchema() ([]byte, error) {
	return manifestSchema.Document().Generate()
}

// ValidateSchema validates plugin.yaml data against the manifest schema.
func ValidateSchema(data []byte) error {
	return manifestSchema.ValidateYAML(data)
}

// FormatSchemaError formats a manifest validation error for display.
func FormatSchemaError(err error) string {
	return schema.Format(err)
}
