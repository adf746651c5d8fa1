// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"errors"

	"github.com/ManuGH/playm3u/internal/m3u"
)

// SourceKind tells where a playlist's text came from.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

var (
	// ErrNoSuchPlaylist is returned for playlist indexes outside the library.
	ErrNoSuchPlaylist = errors.New("playlist not found")
	// ErrInvalidPlaylist rejects playlists without a name. An empty source
	// locator is accepted; such playlists are never deduplicated.
	ErrInvalidPlaylist = errors.New("invalid playlist")
)

// Playlist is a named channel list together with its source descriptor.
// SourceLocator is the identity: saving a playlist with a known locator
// replaces the stored entry.
type Playlist struct {
	Name          string        `json:"name"`
	SourceLocator string        `json:"url"`
	SourceKind    SourceKind    `json:"type"`
	Channels      []m3u.Channel `json:"channels"`
	AutoRefresh   bool          `json:"autoRefresh"`
}

// Library is the persisted aggregate owned by Store.
type Library struct {
	Playlists            []Playlist `json:"playlists"`
	CurrentPlaylistIndex int        `json:"currentPlaylistIndex"`
	CurrentChannelIndex  int        `json:"currentChannelIndex"`
}

// Summary is a channel-less view of a playlist for listings.
type Summary struct {
	Index         int        `json:"index"`
	Name          string     `json:"name"`
	SourceLocator string     `json:"url"`
	SourceKind    SourceKind `json:"type"`
	ChannelCount  int        `json:"channelCount"`
	AutoRefresh   bool       `json:"autoRefresh"`
	Current       bool       `json:"current"`
}

func (p Playlist) clone() Playlist {
	p.Channels = append([]m3u.Channel(nil), p.Channels...)
	return p
}

// ClampChannel maps index into [0, n) and returns 0 for empty lists.
func ClampChannel(index, n int) int {
	if n <= 0 || index < 0 {
		return 0
	}
	if index >= n {
		return n - 1
	}
	return index
}
