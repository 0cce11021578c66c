// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package schema reflects JSON Schemas from Go types and validates decoded
// YAML against them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned when there is no document to validate.
var ErrEmpty = errors.New("document is empty")

const failedPrefix = "schema validation failed: "

// Document describes the schema reflected from a Go type.
type Document struct {
	ID          string
	Title       string
	Description string
	// Type is a pointer to the zero value of the described struct.
	Type any
}

// Generate reflects the schema as indented JSON.
func (d Document) Generate() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(d.Type)
	s.ID = jsonschema.ID(d.ID)
	s.Title = d.Title
	s.Description = d.Description

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Validator checks values against a Document, compiling it on first use.
type Validator struct {
	doc      Document
	once     sync.Once
	compiled *jschema.Schema
	err      error
}

// NewValidator creates a validator for doc.
func NewValidator(doc Document) *Validator {
	return &Validator{doc: doc}
}

// Document returns the document the validator checks against.
func (v *Validator) Document() Document { return v.doc }

func (v *Validator) schema() (*jschema.Schema, error) {
	v.once.Do(func() {
		data, err := v.doc.Generate()
		if err != nil {
			v.err = err
			return
		}
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			v.err = fmt.Errorf("failed to parse schema JSON: %w", err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(v.doc.ID, raw); err != nil {
			v.err = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		if v.compiled, err = c.Compile(v.doc.ID); err != nil {
			v.err = fmt.Errorf("failed to compile schema: %w", err)
		}
	})
	return v.compiled, v.err
}

// Validate checks an already decoded value.
func (v *Validator) Validate(value any) error {
	s, err := v.schema()
	if err != nil {
		return err
	}
	if err := s.Validate(normalize(value)); err != nil {
		return fmt.Errorf("%s%w", failedPrefix, err)
	}
	return nil
}

// ValidateYAML decodes data and validates it.
func (v *Validator) ValidateYAML(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return ErrEmpty
	}
	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return v.Validate(value)
}

// Format trims validator boilerplate from err for display.
func Format(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(err.Error(), failedPrefix))
}

// normalize turns YAML, koanf and flag values into the types the validator
// accepts.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case string, bool, int, int64, float64, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}
