// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptkit_bridge_calls_total",
			Help: "Outgoing bridge calls by endpoint, kind and outcome.",
		},
		[]string{"endpoint", "kind", "status"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scriptkit_bridge_call_duration_seconds",
			Help:    "Latency of outgoing bridge calls.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"endpoint", "kind"},
	)
	liveHandles = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scriptkit_bridge_handles",
			Help: "Handles to peer objects not yet released.",
		},
		[]string{"endpoint"},
	)
)

// RegisterMetrics registers the bridge collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{callsTotal, callDuration, liveHandles} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func statusOf(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBridgeSevered):
		return "severed"
	case errors.Is(err, ErrHandleReleased):
		return "released"
	case errors.Is(err, ErrUncopyable):
		return "uncopyable"
	case errors.As(err, &remote):
		return remote.Envelope.Kind
	default:
		return "error"
	}
}
