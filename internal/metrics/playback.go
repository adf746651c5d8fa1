// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChannelSwitchTotal counts channel switch requests by backend kind.
	ChannelSwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_channel_switch_total",
		Help: "Total number of channel switches, by selected backend.",
	}, []string{"backend"})

	// ChannelRejectTotal counts switch requests rejected before any teardown.
	ChannelRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_channel_reject_total",
		Help: "Total number of rejected channel requests, by reason.",
	}, []string{"reason"})

	// BackendErrorsTotal counts backend error events by backend and severity.
	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_backend_errors_total",
		Help: "Total number of playback backend error events, by backend and severity.",
	}, []string{"backend", "severity"})

	// PlaybackState is 1 for the current controller state and 0 otherwise.
	PlaybackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playm3u_playback_state",
		Help: "Current playback controller state (1 for the active state).",
	}, []string{"state"})

	// ChannelStartupLatency tracks the time from switch request to backend readiness.
	ChannelStartupLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playm3u_channel_startup_latency_seconds",
		Help:    "Time from channel switch to backend readiness.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	}, []string{"backend"})
)

var playbackStates = []string{"idle", "loading", "playing", "error"}

// SetPlaybackState records the active controller state.
func SetPlaybackState(state string) {
	for _, s := range playbackStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		PlaybackState.WithLabelValues(s).Set(value)
	}
}

// RecordChannelSwitch increments the switch counter.
func RecordChannelSwitch(backend string) {
	ChannelSwitchTotal.WithLabelValues(backend).Inc()
}

// RecordChannelReject increments the rejection counter.
func RecordChannelReject(reason string) {
	ChannelRejectTotal.WithLabelValues(reason).Inc()
}

// RecordBackendError increments the backend error counter.
func RecordBackendError(backend string, fatal bool) {
	severity := "non_fatal"
	if fatal {
		severity = "fatal"
	}
	BackendErrorsTotal.WithLabelValues(backend, severity).Inc()
}

// ObserveChannelStartup records the switch-to-ready latency.
func ObserveChannelStartup(backend string, d time.Duration) {
	ChannelStartupLatency.WithLabelValues(backend).Observe(d.Seconds())
}
