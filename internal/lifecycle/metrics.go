// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Script outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUserError   = "user_error"
	OutcomeInterpreter = "interpreter_error"
)

// PhaseDuration is the histogram for time spent in each lifecycle phase.
// Use RegisterMetrics to register this with a Prometheus registry.
var PhaseDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scriptkit_lifecycle_phase_duration_seconds",
		Help:    "Time spent in each lifecycle phase in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"phase"},
)

// ScriptExecutions counts executed page fragments.
// Use RegisterMetrics to register this with a Prometheus registry.
var ScriptExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scriptkit_script_executions_total",
		Help: "Total number of page fragments executed",
	},
	[]string{"kind", "outcome"},
)

// RunFailures counts runs that ended in the failed state.
// Use RegisterMetrics to register this with a Prometheus registry.
var RunFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scriptkit_lifecycle_failures_total",
		Help: "Total number of page runs that failed, by the phase they failed in",
	},
	[]string{"phase", "user_error"},
)

// RegisterMetrics registers the lifecycle collectors with reg. Collectors
// already registered are left in place.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{PhaseDuration, ScriptExecutions, RunFailures} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}
