// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPRouteKey      = "http.route"
	HTTPStatusCodeKey = "http.status_code"

	PlaylistURLKey  = "playlist.url"
	PlaylistNameKey = "playlist.name"
	FetchPathKey    = "fetch.path"
	FetchAttemptKey = "fetch.attempts"

	ChannelNameKey  = "channel.name"
	ChannelIndexKey = "channel.index"
	BackendKey      = "playback.backend"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// FetchAttributes describes the winning attempt of a playlist fetch.
func FetchAttributes(path string, attempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(FetchPathKey, path),
		attribute.Int(FetchAttemptKey, attempts),
	}
}

// ChannelAttributes describes a channel switch. Empty strings are omitted.
func ChannelAttributes(playlist, channel string, index int, backend string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if playlist != "" {
		attrs = append(attrs, attribute.String(PlaylistNameKey, playlist))
	}
	if channel != "" {
		attrs = append(attrs, attribute.String(ChannelNameKey, channel))
	}
	attrs = append(attrs, attribute.Int(ChannelIndexKey, index))
	if backend != "" {
		attrs = append(attrs, attribute.String(BackendKey, backend))
	}
	return attrs
}
