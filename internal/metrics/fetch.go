// Package metrics provides Prometheus metrics for playm3u.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttemptsTotal counts playlist fetch attempts by access path and outcome.
	FetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_fetch_attempts_total",
		Help: "Total number of playlist fetch attempts, by access path and outcome.",
	}, []string{"path", "outcome"})

	// FetchDuration tracks the wall time of a complete fetch (all attempts).
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playm3u_fetch_duration_seconds",
		Help:    "Time taken to fetch a playlist across all access paths.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30, 45},
	}, []string{"result"})
)

// RecordFetchAttempt increments the attempt counter for one access path.
func RecordFetchAttempt(path, outcome string) {
	FetchAttemptsTotal.WithLabelValues(path, outcome).Inc()
}

// ObserveFetch records the total fetch duration.
func ObserveFetch(ok bool, d time.Duration) {
	result := "failure"
	if ok {
		result = "success"
	}
	FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}
