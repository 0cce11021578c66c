// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var hookFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scriptkit_plugin_hook_failures_total",
		Help: "Plugin hook invocations that returned an error or panicked.",
	},
	[]string{"plugin", "hook"},
)

// RegisterMetrics registers the plugin collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(hookFailures); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
	}
	return nil
}
