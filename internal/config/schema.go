// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"github.com/holomush/scriptkit/internal/schema"
)

// SchemaID is the $id of the config schema.
const SchemaID = "https://holomush.dev/schemas/scriptkit.config.schema.json"

var configSchema = schema.NewValidator(schema.Document{
	ID:          SchemaID,
	Title:       "scriptkit application config",
	Description: "Schema for page config blocks and config files",
	Type:        &AppConfig{},
})

// GenerateSchema returns the config JSON Schema.
func GenerateSchema() ([]byte, error) {
	return configSchema.Document().Generate()
}

// ValidateMap validates decoded config data against the schema.
func ValidateMap(data map[string]any) error {
	return configSchema.Validate(data)
}

// FormatSchemaError trims validator boilerplate from err.
func FormatSchemaError(err error) string {
	return schema.Format(err)
}
