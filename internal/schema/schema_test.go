// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package schema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/scriptkit/internal/schema"
)

type widget struct {
	Name  string   `json:"name" jsonschema:"required,maxLength=8"`
	Tags  []string `json:"tags,omitempty"`
	Count int      `json:"count,omitempty" jsonschema:"minimum=0"`
}

var widgets = schema.NewValidator(schema.Document{
	ID:    "https://example.com/widget.schema.json",
	Title: "widget",
	Type:  &widget{},
})

func TestDocument_Generate(t *testing.T) {
	data, err := widgets.Document().Generate()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://example.com/widget.schema.json", doc["$id"])
	assert.Equal(t, "widget", doc["title"])
	assert.Contains(t, doc["properties"], "name")
}

func TestValidator_ValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid", yaml: "name: gear\ntags: [a, b]\n"},
		{name: "missing name", yaml: "count: 1\n", wantErr: "missing"},
		{name: "too long", yaml: "name: sprocketry\n", wantErr: "name"},
		{name: "negative", yaml: "name: gear\ncount: -1\n", wantErr: "count"},
		{name: "not yaml", yaml: "name: [", wantErr: "invalid YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := widgets.ValidateYAML([]byte(tt.yaml))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, schema.Format(err), tt.wantErr)
		})
	}
}

func TestValidator_EmptyDocument(t *testing.T) {
	assert.ErrorIs(t, widgets.ValidateYAML([]byte("  \n")), schema.ErrEmpty)
}

func TestValidator_ValidateAcceptsStringSlices(t *testing.T) {
	assert.NoError(t, widgets.Validate(map[string]any{
		"name": "gear",
		"tags": []string{"from", "flags"},
	}))
}

func TestFormat(t *testing.T) {
	assert.Empty(t, schema.Format(nil))
	assert.Equal(t, "plain", schema.Format(errors.New("plain")))
}
