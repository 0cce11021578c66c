// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/plugin"
)

func TestGenerateSchema(t *testing.T) {
	data, err := plugin.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, plugin.SchemaID, schema["$id"])
	assert.Equal(t, "scriptkit Plugin Manifest", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"name", "version", "requires", "executable", "hooks"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateSchema_Valid(t *testing.T) {
	yaml := `
name: echo
version: 1.0.0
executable: echo-plugin
hooks: [configure]
`
	if err := plugin.ValidateSchema([]byte(yaml)); err != nil {
		t.Errorf("ValidateSchema() error = %v, want nil", err)
	}
}

func TestValidateSchema_NameTooLong(t *testing.T) {
	// 65 characters - one over the 64 char limit (boundary test)
	yaml := "name: a" + strings.Repeat("2", 64) + "\nversion: 1.0.0\nexecutable: x\n"
	if err := plugin.ValidateSchema([]byte(yaml)); err == nil {
		t.Error("ValidateSchema() expected error for name exceeding 64 chars")
	}
}

func TestValidateSchema_NameExactlyMaxLength(t *testing.T) {
	yaml := "name: a" + strings.Repeat("2", 63) + "\nversion: 1.0.0\nexecutable: x\n"
	if err := plugin.ValidateSchema([]byte(yaml)); err != nil {
		t.Errorf("ValidateSchema() error = %v, want nil for 64 char name", err)
	}
}

func TestValidateSchema_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "version: 1.0.0\nexecutable: x\n"},
		{name: "missing version", yaml: "name: t\nexecutable: x\n"},
		{name: "missing executable", yaml: "name: t\nversion: 1.0.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := plugin.ValidateSchema([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, plugin.FormatSchemaError(err), "missing")
		})
	}
}

func TestValidateSchema_UnknownField(t *testing.T) {
	yaml := "name: t\nversion: 1.0.0\nexecutable: x\ntype: lua\n"
	require.Error(t, plugin.ValidateSchema([]byte(yaml)))
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, plugin.FormatSchemaError(nil))
}
