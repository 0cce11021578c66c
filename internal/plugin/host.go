// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
)

// Host runs out-of-process plugins described by a manifest.
type Host interface {
	// Load starts the plugin found in dir and returns it ready to register.
	Load(ctx context.Context, manifest *Manifest, dir string) (HostPlugin, error)

	// Plugins returns names of all loaded plugins.
	Plugins() []string

	// Close shuts down the host and all plugins.
	Close(ctx context.Context) error
}
