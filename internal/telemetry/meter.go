// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ManuGH/playm3u"

// ChannelStartupMetric is the OpenTelemetry histogram for switch-to-ready latency.
const ChannelStartupMetric = "playm3u.channel.startup"

// Meter returns a meter from the global provider. It is resolved on every
// call so a provider installed after start-up is picked up.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// RecordChannelStartup records how long a channel took to start playing.
func RecordChannelStartup(ctx context.Context, backend string, d time.Duration) {
	h, err := Meter(meterName).Float64Histogram(ChannelStartupMetric,
		metric.WithUnit("s"),
		metric.WithDescription("Time from channel switch to first playback"),
	)
	if err != nil {
		return
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(BackendKey, backend)))
}
