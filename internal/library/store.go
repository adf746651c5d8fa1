// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library owns the stored playlists and the last-watched selection.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/playm3u/internal/kv"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/metrics"
	"github.com/rs/zerolog"
)

// Persistence keys. Every value is a whole JSON document.
const (
	KeyPlaylists    = "playm3u_playlists"
	KeyLastPlaylist = "playm3u_last_pl"
	KeyLastChannel  = "playm3u_last_ch"
	KeyVisited      = "playm3u_first_visit"
)

// Store provides the playlist library on top of a key-value backend.
// Every mutation is flushed before the call returns.
type Store struct {
	mu      sync.Mutex
	kv      kv.Store
	lib     Library
	visited bool
	logger  zerolog.Logger
}

// NewStore creates an empty store. Call Load to read persisted state.
func NewStore(backend kv.Store) *Store {
	return &Store{
		kv:     backend,
		logger: xglog.WithComponent("library"),
	}
}

// Load reads the library from the backend. Absent or unparsable values fall
// back to their defaults (empty list, index 0, not visited); only backend
// I/O failures are returned.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		lib     Library
		errs    []error
		visited bool
	)
	errs = append(errs,
		s.read(ctx, KeyPlaylists, &lib.Playlists),
		s.read(ctx, KeyLastPlaylist, &lib.CurrentPlaylistIndex),
		s.read(ctx, KeyLastChannel, &lib.CurrentChannelIndex),
		s.read(ctx, KeyVisited, &visited),
	)

	lib.Playlists = sanitize(lib.Playlists)
	lib.CurrentPlaylistIndex = clampPlaylist(lib.CurrentPlaylistIndex, len(lib.Playlists))
	if lib.CurrentChannelIndex < 0 {
		lib.CurrentChannelIndex = 0
	}

	s.lib = lib
	s.visited = visited
	metrics.LibraryPlaylists.Set(float64(len(lib.Playlists)))

	s.logger.Info().
		Str(xglog.FieldEvent, "library.loaded").
		Int("playlists", len(lib.Playlists)).
		Int(xglog.FieldPlaylistIndex, lib.CurrentPlaylistIndex).
		Int(xglog.FieldChannelIndex, lib.CurrentChannelIndex).
		Msg("loaded playlist library")

	return errors.Join(errs...)
}

// read decodes key into v, leaving v at its zero value when the key is
// absent or corrupt.
func (s *Store) read(ctx context.Context, key string, v any) error {
	err := kv.GetJSON(ctx, s.kv, key, v)
	switch {
	case err == nil, errors.Is(err, kv.ErrNotFound):
		return nil
	case errors.Is(err, kv.ErrCorrupt):
		metrics.RecordCorrupt(key)
		s.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "library.corrupt_value").
			Str("key", key).
			Msg("persisted value unreadable, using default")
		return nil
	default:
		return fmt.Errorf("load %s: %w", key, err)
	}
}

// sanitize drops entries that could never be played or identified.
func sanitize(in []Playlist) []Playlist {
	out := make([]Playlist, 0, len(in))
	for _, p := range in {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		channels := p.Channels[:0:0]
		for _, ch := range p.Channels {
			if ch.URL != "" {
				channels = append(channels, ch)
			}
		}
		p.Channels = channels
		out = append(out, p)
	}
	return out
}

func clampPlaylist(index, n int) int {
	if n == 0 || index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}

// Upsert stores p. A playlist whose SourceLocator matches an existing entry
// replaces it in place; otherwise p is appended. The affected entry becomes
// the current playlist and the channel pointer resets to 0.
func (s *Store) Upsert(ctx context.Context, p Playlist) (int, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return -1, fmt.Errorf("%w: name is empty", ErrInvalidPlaylist)
	}
	if p.SourceKind == "" {
		p.SourceKind = SourceRemote
	}
	p = p.clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(p.SourceLocator)
	replaced := index >= 0
	if replaced {
		s.lib.Playlists[index] = p
	} else {
		s.lib.Playlists = append(s.lib.Playlists, p)
		index = len(s.lib.Playlists) - 1
	}
	s.lib.CurrentPlaylistIndex = index
	s.lib.CurrentChannelIndex = 0

	s.logger.Info().
		Str(xglog.FieldEvent, "library.upsert").
		Str(xglog.FieldPlaylist, p.Name).
		Str(xglog.FieldSource, string(p.SourceKind)).
		Int(xglog.FieldPlaylistIndex, index).
		Int(xglog.FieldChannelCount, len(p.Channels)).
		Bool("replaced", replaced).
		Msg("playlist saved")

	return index, s.flush(ctx, KeyPlaylists, KeyLastPlaylist, KeyLastChannel)
}

// indexOf returns the position of the playlist with locator, or -1.
// Playlists without a locator never match.
func (s *Store) indexOf(locator string) int {
	if locator == "" {
		return -1
	}
	for i, p := range s.lib.Playlists {
		if p.SourceLocator == locator {
			return i
		}
	}
	return -1
}

// ReplaceChannels swaps the channel list of the playlist identified by
// locator without touching the selection. It reports whether an entry matched.
func (s *Store) ReplaceChannels(ctx context.Context, locator string, channels []m3u.Channel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOf(locator)
	if index < 0 {
		return false, nil
	}
	s.lib.Playlists[index].Channels = append([]m3u.Channel(nil), channels...)
	return true, s.flush(ctx, KeyPlaylists)
}

// Remove deletes the playlist at index. When the removed entry was at or
// before the current selection the selection moves so that it keeps pointing
// at a valid entry; the channel pointer resets to 0.
func (s *Store) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.lib.Playlists)
	if index < 0 || index >= n {
		return fmt.Errorf("%w: index %d", ErrNoSuchPlaylist, index)
	}
	removed := s.lib.Playlists[index]
	s.lib.Playlists = append(s.lib.Playlists[:index:index], s.lib.Playlists[index+1:]...)

	cur := s.lib.CurrentPlaylistIndex
	if index < cur {
		cur--
	}
	s.lib.CurrentPlaylistIndex = clampPlaylist(cur, len(s.lib.Playlists))
	s.lib.CurrentChannelIndex = 0

	s.logger.Info().
		Str(xglog.FieldEvent, "library.remove").
		Str(xglog.FieldPlaylist, removed.Name).
		Int(xglog.FieldPlaylistIndex, index).
		Int("remaining", len(s.lib.Playlists)).
		Msg("playlist removed")

	return s.flush(ctx, KeyPlaylists, KeyLastPlaylist, KeyLastChannel)
}

// SelectPlaylist sets the current playlist pointer. Bounds are the caller's concern.
func (s *Store) SelectPlaylist(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib.CurrentPlaylistIndex = index
	return s.flush(ctx, KeyLastPlaylist)
}

// SelectChannel sets the current channel pointer. Bounds are the caller's concern.
func (s *Store) SelectChannel(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lib.CurrentChannelIndex = index
	return s.flush(ctx, KeyLastChannel)
}

// FirstVisit reports whether the visited flag has never been set.
func (s *Store) FirstVisit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.visited
}

// MarkVisited persists the visited flag.
func (s *Store) MarkVisited(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited {
		return nil
	}
	s.visited = true
	return s.flush(ctx, KeyVisited)
}

// Current returns a copy of the current playlist with its index and the
// current channel index clamped into the playlist. ok is false when the
// library is empty.
func (s *Store) Current() (p Playlist, playlistIndex, channelIndex int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.lib.Playlists)
	if n == 0 {
		return Playlist{}, 0, 0, false
	}
	playlistIndex = clampPlaylist(s.lib.CurrentPlaylistIndex, n)
	p = s.lib.Playlists[playlistIndex].clone()
	return p, playlistIndex, ClampChannel(s.lib.CurrentChannelIndex, len(p.Channels)), true
}

// Playlist returns a copy of the playlist at index.
func (s *Store) Playlist(index int) (Playlist, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lib.Playlists) {
		return Playlist{}, false
	}
	return s.lib.Playlists[index].clone(), true
}

// Len returns the number of stored playlists.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lib.Playlists)
}

// Summaries lists every playlist without its channels.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := clampPlaylist(s.lib.CurrentPlaylistIndex, len(s.lib.Playlists))
	out := make([]Summary, 0, len(s.lib.Playlists))
	for i, p := range s.lib.Playlists {
		out = append(out, Summary{
			Index:         i,
			Name:          p.Name,
			SourceLocator: p.SourceLocator,
			SourceKind:    p.SourceKind,
			ChannelCount:  len(p.Channels),
			AutoRefresh:   p.AutoRefresh,
			Current:       i == cur,
		})
	}
	return out
}

// Snapshot returns a deep copy of the aggregate as currently held in memory.
func (s *Store) Snapshot() Library {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.lib
	out.Playlists = make([]Playlist, len(s.lib.Playlists))
	for i, p := range s.lib.Playlists {
		out.Playlists[i] = p.clone()
	}
	return out
}

// flush writes the named keys from the in-memory aggregate. Caller must hold mu.
func (s *Store) flush(ctx context.Context, keys ...string) error {
	metrics.LibraryPlaylists.Set(float64(len(s.lib.Playlists)))

	var errs []error
	for _, key := range keys {
		var v any
		switch key {
		case KeyPlaylists:
			playlists := s.lib.Playlists
			if playlists == nil {
				playlists = []Playlist{}
			}
			v = playlists
		case KeyLastPlaylist:
			v = s.lib.CurrentPlaylistIndex
		case KeyLastChannel:
			v = s.lib.CurrentChannelIndex
		case KeyVisited:
			v = s.visited
		default:
			continue
		}
		if err := kv.SetJSON(ctx, s.kv, key, v); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	metrics.RecordFlush(err)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "library.flush_failed").
			Msg("failed to persist library")
		return fmt.Errorf("persist library: %w", err)
	}
	return nil
}
