// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookFailuresCounted(t *testing.T) {
	m := NewManager(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, m.Register(HostNative{Plugin: &Funcs{
		PluginName: "metrics-flaky",
		Set: Hooks{
			AfterStartup: func(context.Context, ConfigOptions) error { return errors.New("boom") },
		},
	}}))

	before := testutil.ToFloat64(hookFailures.WithLabelValues("metrics-flaky", "after_startup"))
	m.AfterStartup(context.Background(), ConfigOptions{})
	m.AfterStartup(context.Background(), ConfigOptions{})
	after := testutil.ToFloat64(hookFailures.WithLabelValues("metrics-flaky", "after_startup"))

	assert.InDelta(t, 2, after-before, 0.001)
}

func TestRegisterMetrics_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg))
}
