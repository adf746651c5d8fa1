package player

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/playm3u/internal/backend"
	"github.com/ManuGH/playm3u/internal/library"
)

// State is the phase of the current channel-switch transaction.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateError   State = "error"
)

var (
	// ErrChannelNotFound rejects a channel index outside the current playlist.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNoChannels means there is no current playlist or it has no channels.
	ErrNoChannels = errors.New("no channels to play")
	// ErrInvalidDigit rejects numeric keys other than 0-9.
	ErrInvalidDigit = errors.New("invalid digit")
	// ErrStopped is returned once the controller loop has exited.
	ErrStopped = errors.New("player stopped")
)

// Defaults for Config.
const (
	DefaultOverlayDuration    = 4 * time.Second
	DefaultNumericCommitDelay = 1500 * time.Millisecond
	DefaultReadyTimeout       = 30 * time.Second
	// MaxNumericDigits bounds the numeric entry buffer; a further digit
	// starts a new entry.
	MaxNumericDigits = 4
)

// Config tunes the controller's timers and backend availability.
// ReadyTimeout 0 disables the readiness watchdog.
type Config struct {
	OverlayDuration    time.Duration
	NumericCommitDelay time.Duration
	ReadyTimeout       time.Duration
	Capabilities       backend.Capabilities
}

// Library is the part of the playlist store the controller depends on.
type Library interface {
	Current() (p library.Playlist, playlistIndex, channelIndex int, ok bool)
	SelectChannel(ctx context.Context, index int) error
}

// Overlay is the transient channel banner shown when playback starts.
type Overlay struct {
	Visible  bool      `json:"visible"`
	Number   int       `json:"number,omitempty"`
	Name     string    `json:"name,omitempty"`
	Group    string    `json:"group,omitempty"`
	Logo     string    `json:"logo,omitempty"`
	Playlist string    `json:"playlist,omitempty"`
	Until    time.Time `json:"until,omitempty"`
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State         State        `json:"state"`
	Backend       backend.Kind `json:"backend"`
	PlaylistIndex int          `json:"playlistIndex"`
	PlaylistName  string       `json:"playlistName,omitempty"`
	ChannelIndex  int          `json:"channelIndex"`
	ChannelName   string       `json:"channelName,omitempty"`
	ChannelURL    string       `json:"channelUrl,omitempty"`
	Overlay       Overlay      `json:"overlay"`
	NumericBuffer string       `json:"numericBuffer,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}
