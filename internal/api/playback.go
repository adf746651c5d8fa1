// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/player"
)

// stateResponse combines the controller snapshot with the stored pointers.
type stateResponse struct {
	Player        player.Snapshot `json:"player"`
	Playlists     int             `json:"playlists"`
	PlaylistIndex int             `json:"playlistIndex"`
	ChannelIndex  int             `json:"channelIndex"`
	FirstVisit    bool            `json:"firstVisit"`
}

// handleState reports the first visit once and then records it.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.player.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, playlistIndex, channelIndex, _ := s.lib.Current()
	resp := stateResponse{
		Player:        snap,
		Playlists:     s.lib.Len(),
		PlaylistIndex: playlistIndex,
		ChannelIndex:  channelIndex,
		FirstVisit:    s.lib.FirstVisit(),
	}
	if resp.FirstVisit {
		if err := s.lib.MarkVisited(r.Context()); err != nil {
			s.logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "api.mark_visited_failed").
				Msg("could not persist visited flag")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r, "index")
	if !ok {
		writeProblem(w, http.StatusBadRequest, "invalid_index", "index must be a non-negative integer")
		return
	}
	if err := s.player.PlayChannel(r.Context(), index); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusAccepted)
}

func (s *Server) handleChannelUp(w http.ResponseWriter, r *http.Request) {
	if err := s.player.ChannelUp(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusAccepted)
}

func (s *Server) handleChannelDown(w http.ResponseWriter, r *http.Request) {
	if err := s.player.ChannelDown(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusAccepted)
}

// handleKey feeds one remote-control digit into the numeric entry buffer.
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "digit")
	d, err := strconv.Atoi(raw)
	if err != nil || len(raw) != 1 {
		writeProblem(w, http.StatusBadRequest, "invalid_digit", "digit must be 0-9")
		return
	}
	if err := s.player.PressDigit(r.Context(), d); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSnapshot(w, r, http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.player.Stop(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotices returns notices newer than ?since (a sequence number).
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid_request", "since must be a sequence number")
			return
		}
		since = n
	}
	notices := s.feed.Since(since)
	last := since
	if len(notices) > 0 {
		last = notices[len(notices)-1].Seq
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices, "last": last})
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, code int) {
	snap, err := s.player.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, snap)
}
