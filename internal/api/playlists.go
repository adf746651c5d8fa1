// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
)

// selectRequest optionally names the channel to start on.
type selectRequest struct {
	Channel int `json:"channel"`
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"playlists": s.lib.Summaries()})
}

// handleImport stores a playlist and starts its first channel.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.ingest.Import(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.player.PlayChannel(r.Context(), 0); err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "api.autoplay_failed").
			Str(xglog.FieldPlaylist, res.Name).
			Msg("playlist saved but first channel did not start")
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	p, ok := s.lib.Playlist(index)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: index %d", library.ErrNoSuchPlaylist, index))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePlaylist removes a playlist; playback stops when it was the
// one being watched.
func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}

	_, current, _, hadCurrent := s.lib.Current()
	if err := s.lib.Remove(r.Context(), index); err != nil {
		writeError(w, r, err)
		return
	}
	if hadCurrent && current == index {
		if err := s.player.Stop(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectPlaylist makes a playlist current and resumes on the requested
// channel (0 by default).
func (s *Server) handleSelectPlaylist(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	var req selectRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeProblem(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	if index >= s.lib.Len() {
		writeError(w, r, fmt.Errorf("%w: index %d", library.ErrNoSuchPlaylist, index))
		return
	}

	ctx := r.Context()
	if err := s.lib.SelectPlaylist(ctx, index); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.lib.SelectChannel(ctx, max(req.Channel, 0)); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.player.Resume(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusAccepted)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	res, err := s.ingest.Refresh(r.Context(), index, ingest.TriggerManual)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport renders a stored playlist back to M3U text.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	p, ok := s.lib.Playlist(index)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: index %d", library.ErrNoSuchPlaylist, index))
		return
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(p.Name)))
	if err := m3u.Write(w, p.Name, p.Channels); err != nil {
		s.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "api.export_failed").
			Str(xglog.FieldPlaylist, p.Name).
			Msg("export aborted")
	}
}

// exportFilename keeps letters, digits, dash and underscore.
func exportFilename(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	if clean == "" {
		clean = "playlist"
	}
	return clean + ".m3u"
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
