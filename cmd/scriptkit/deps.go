// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"

	"github.com/holomush/scriptkit/internal/observability"
	"github.com/holomush/scriptkit/internal/plugin"
)

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// PluginHostFactory creates the host for binary plugins.
	// Default: goplugin.NewHost
	PluginHostFactory func() plugin.Host

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with the scriptkit collectors
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) (ObservabilityServer, error)

	// CacheDirGetter returns the fetch cache directory.
	// Default: xdg.CacheDir
	CacheDirGetter func() (string, error)

	// ConfigDirGetter returns the directory whose plugins subdirectory is
	// searched for bare binary plugin names.
	// Default: xdg.ConfigDir
	ConfigDirGetter func() (string, error)

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	SetReportFunc(fn observability.ReportFunc)
}
