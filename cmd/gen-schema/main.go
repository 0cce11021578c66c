// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the config and plugin manifest JSON Schema files.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/plugin"
)

func main() {
	outputs := []struct {
		file string
		gen  func() ([]byte, error)
	}{
		{"config.schema.json", config.GenerateSchema},
		{"plugin.schema.json", plugin.GenerateSchema},
	}

	if err := os.MkdirAll("schemas", 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, o := range outputs {
		schema, err := o.gen()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s: %v\n", o.file, err)
			os.Exit(1)
		}
		outPath := filepath.Join("schemas", o.file)
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
