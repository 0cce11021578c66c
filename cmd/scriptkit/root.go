// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/scriptkit/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logFormat string
	logLevel  string
}

// NewRootCmd creates the root command for the scriptkit CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "scriptkit",
		Short: "scriptkit - run Lua scripts embedded in HTML pages",
		Long: `scriptkit loads an HTML page, starts a sandboxed Lua interpreter for it
and runs the page's <script type="lua"> fragments in order, with plugins
hooking every phase of the run.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", logging.FormatText, "log format (json or text)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewRunCmd(flags))
	cmd.AddCommand(NewSchemaCmd())

	return cmd
}
