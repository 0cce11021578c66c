// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/holomush/scriptkit/internal/config"
	"github.com/holomush/scriptkit/internal/plugin"
)

var schemaGenerators = map[string]func() ([]byte, error){
	"config": config.GenerateSchema,
	"plugin": plugin.GenerateSchema,
}

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:       "schema {config|plugin}",
		Short:     "Print the JSON Schema of a config file or plugin manifest",
		Long:      `Schema prints the JSON Schema used to validate lua-config blocks (config) or plugin.yaml manifests (plugin).`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "plugin"},
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := schemaGenerators[args[0]]()
			if err != nil {
				return fmt.Errorf("failed to generate %s schema: %w", args[0], err)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(schema)
				return err
			}
			if err := os.WriteFile(output, schema, 0o600); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to this file instead of stdout")
	return cmd
}
