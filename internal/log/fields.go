// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Library fields
	FieldPlaylist      = "playlist"
	FieldPlaylistIndex = "playlist_index"
	FieldChannel       = "channel"
	FieldChannelIndex  = "channel_index"
	FieldChannelCount  = "channel_count"
	FieldSource        = "source"

	// Playback fields
	FieldBackend  = "backend"
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Fetch fields
	FieldURL     = "url"
	FieldAttempt = "attempt"
	FieldPath    = "path"
)
