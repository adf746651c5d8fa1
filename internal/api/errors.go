// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/player"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorBody{Error: kind, Detail: detail})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var failure *fetch.FailureError
	switch {
	case errors.As(err, &failure):
		writeProblem(w, http.StatusBadGateway, "fetch_failed", failure.UserMessage())
	case errors.Is(err, fetch.ErrFetchFailure):
		writeProblem(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, fetch.ErrInvalidURL):
		writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ingest.ErrEmptyPlaylist):
		writeProblem(w, http.StatusUnprocessableEntity, "empty_playlist", err.Error())
	case errors.Is(err, fetch.ErrFileUnreadable):
		writeProblem(w, http.StatusUnprocessableEntity, "file_unreadable", err.Error())
	case errors.Is(err, library.ErrNoSuchPlaylist):
		writeProblem(w, http.StatusNotFound, "playlist_not_found", err.Error())
	case errors.Is(err, player.ErrChannelNotFound):
		writeProblem(w, http.StatusNotFound, "channel_not_found", err.Error())
	case errors.Is(err, player.ErrNoChannels):
		writeProblem(w, http.StatusConflict, "no_channels", err.Error())
	case errors.Is(err, player.ErrInvalidDigit):
		writeProblem(w, http.StatusBadRequest, "invalid_digit", err.Error())
	case errors.Is(err, player.ErrStopped):
		writeProblem(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "api.internal_error").
			Str("path", r.URL.Path).
			Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
