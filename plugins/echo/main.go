// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements an echo plugin for scriptkit.
// It reports every lifecycle hook it receives on stderr, which go-plugin
// forwards to the host log, and rejects configs that name no page.
//
// Build with:
//
//	go build -o plugins/echo/echo-plugin ./plugins/echo
//
// then list the plugins/echo directory under plugins in the page config.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/holomush/scriptkit/pkg/pluginsdk"
)

// EchoPlugin logs hooks as they arrive.
type EchoPlugin struct{}

// HandleHook implements pluginsdk.Handler.
func (EchoPlugin) HandleHook(_ context.Context, hook string, opts map[string]any) error {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(os.Stderr, "echo: %s %v\n", hook, keys)

	if hook == "configure" {
		cfg, _ := opts["config"].(map[string]any)
		if name, _ := cfg["name"].(string); name == "" {
			return &pluginsdk.UserError{
				Code:    "BAD_CONFIG",
				Message: "echo plugin: the page config needs a name",
				Warning: true,
			}
		}
	}
	return nil
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{
		Handler: EchoPlugin{},
	})
}
