// Package notify keeps the short user-facing messages raised by the player
// and the importer (saved, not found, load failures).
package notify

import (
	"sync"
	"time"
)

// Kind classifies a notice for presentation.
type Kind string

const (
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

// DefaultCapacity is the number of notices retained by NewFeed(0).
const DefaultCapacity = 64

// Notice is one message for the user.
type Notice struct {
	Seq     uint64    `json:"seq"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink receives notices.
type Sink interface {
	Notify(kind Kind, message string)
}

// Feed is a bounded in-memory ring of notices, safe for concurrent use.
type Feed struct {
	mu   sync.Mutex
	buf  []Notice
	next int
	full bool
	seq  uint64
	now  func() time.Time
}

// NewFeed returns a feed keeping the most recent capacity notices.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{buf: make([]Notice, capacity), now: time.Now}
}

// Notify appends a notice, evicting the oldest when full.
func (f *Feed) Notify(kind Kind, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.buf[f.next] = Notice{Seq: f.seq, Kind: kind, Message: message, At: f.now().UTC()}
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

// Since returns the retained notices with Seq greater than after, oldest first.
func (f *Feed) Since(after uint64) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ordered []Notice
	if f.full {
		ordered = append(ordered, f.buf[f.next:]...)
	}
	ordered = append(ordered, f.buf[:f.next]...)

	out := make([]Notice, 0, len(ordered))
	for _, n := range ordered {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the newest notice.
func (f *Feed) Last() (Notice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq == 0 {
		return Notice{}, false
	}
	i := f.next - 1
	if i < 0 {
		i = len(f.buf) - 1
	}
	return f.buf[i], true
}

// Discard drops notices.
type Discard struct{}

func (Discard) Notify(Kind, string) {}
