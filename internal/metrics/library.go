package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LibraryPlaylists tracks the number of stored playlists.
	LibraryPlaylists = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playm3u_library_playlists",
		Help: "Current number of playlists in the library.",
	})

	// LibraryFlushTotal counts persistence flushes by result.
	LibraryFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_library_flush_total",
		Help: "Total number of library persistence flushes, by result.",
	}, []string{"result"})

	// LibraryCorruptTotal counts persisted values replaced by defaults on load.
	LibraryCorruptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_library_corrupt_total",
		Help: "Total number of unreadable persisted values replaced with defaults, by key.",
	}, []string{"key"})

	// PlaylistRefreshTotal counts playlist refreshes by trigger and result.
	PlaylistRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playm3u_playlist_refresh_total",
		Help: "Total number of playlist refreshes, by trigger and result.",
	}, []string{"trigger", "result"})
)

// RecordFlush increments the flush counter.
func RecordFlush(err error) {
	if err != nil {
		LibraryFlushTotal.WithLabelValues("error").Inc()
		return
	}
	LibraryFlushTotal.WithLabelValues("ok").Inc()
}

// RecordCorrupt increments the corrupt-value counter for key.
func RecordCorrupt(key string) {
	LibraryCorruptTotal.WithLabelValues(key).Inc()
}

// RecordRefresh increments the refresh counter.
func RecordRefresh(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PlaylistRefreshTotal.WithLabelValues(trigger, result).Inc()
}
