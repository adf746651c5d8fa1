package fetch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetchFailure means every download attempt for a playlist failed.
	ErrFetchFailure = errors.New("playlist could not be loaded")
	// ErrFileUnreadable means a local playlist file could not be read.
	ErrFileUnreadable = errors.New("playlist file unreadable")
	// ErrInvalidURL rejects locators that cannot be requested at all.
	ErrInvalidURL = errors.New("invalid playlist url")
)

// Attempt records the outcome of one download attempt.
type Attempt struct {
	Path string // "direct", "relay-1", ...
	URL  string
	Err  error
}

// FailureError lists every attempt made for a playlist that could not be
// loaded. It matches ErrFetchFailure under errors.Is.
type FailureError struct {
	URL      string
	Attempts []Attempt
}

func (e *FailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", ErrFetchFailure.Error(), e.URL)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.Path, a.Err)
	}
	return b.String()
}

func (e *FailureError) Unwrap() error { return ErrFetchFailure }

// UserMessage is the text shown to the user for a failed import.
func (e *FailureError) UserMessage() string {
	return "Failed to load playlist"
}

// rejection is a soft attempt failure that is not a transport error.
type rejection struct {
	reason string
}

func (r *rejection) Error() string { return r.reason }
