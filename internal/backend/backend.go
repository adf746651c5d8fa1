// Package backend implements the playback engines: HLS and DASH manifest
// validation in front of a playback sink, and direct playback.
package backend

import (
	"context"
	"errors"
	"net/http"
)

// EventKind tags a backend event.
type EventKind int

const (
	// EventReady means the stream is playing.
	EventReady EventKind = iota + 1
	// EventFatal means the stream cannot be played; the session is over.
	EventFatal
	// EventNonFatal reports a recoverable problem; playback continues.
	EventNonFatal
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventFatal:
		return "fatal"
	case EventNonFatal:
		return "non_fatal"
	default:
		return "unknown"
	}
}

// Event is emitted by a backend on its Events channel.
type Event struct {
	Kind    EventKind
	Message string
}

var (
	// ErrNoSink is returned by Load before Attach.
	ErrNoSink = errors.New("backend has no sink attached")
	// ErrLoaded is returned by a second Load on the same backend.
	ErrLoaded = errors.New("backend already loaded")
)

// Backend is one playback session's engine. Attach, then Load once, then
// Detach. Detach is idempotent and releases the sink.
type Backend interface {
	Kind() Kind
	Attach(sink Sink)
	Load(ctx context.Context, locator string) error
	Events() <-chan Event
	Detach() error
}

// Sink is the playback output. Play starts rendering locator and returns a
// channel that yields once when playback ends. Stop ends the current
// playback, if any.
type Sink interface {
	Play(ctx context.Context, locator string) (<-chan error, error)
	Stop() error
}

// HTTPDoer executes manifest requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Factory creates a fresh backend of the given kind.
type Factory func(kind Kind) Backend

// NewFactory returns the production factory. Manifest requests go through doer.
func NewFactory(doer HTTPDoer) Factory {
	if doer == nil {
		doer = http.DefaultClient
	}
	return func(kind Kind) Backend {
		switch kind {
		case KindHLS:
			return newEngine(KindHLS, hlsProbe(doer))
		case KindDASH:
			return newEngine(KindDASH, dashProbe(doer))
		default:
			return newEngine(KindDirect, nil)
		}
	}
}
