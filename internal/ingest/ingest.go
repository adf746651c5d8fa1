// Package ingest turns playlist sources into stored playlists: imports from
// a URL or a local file, refreshes on startup, and re-reads watched local
// files when they change.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/metrics"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyPlaylist means the source parsed to zero channels.
	ErrEmptyPlaylist = errors.New("playlist has no channels")
	// ErrInvalidRequest rejects imports without a name or with other than
	// exactly one source.
	ErrInvalidRequest = errors.New("invalid import request")
)

// Refresh triggers, used as metric labels.
const (
	TriggerStartup = "startup"
	TriggerManual  = "manual"
	TriggerWatch   = "watch"
)

// Fetcher downloads remote playlist text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Request describes a playlist to import. Exactly one of URL and Path is set.
type Request struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Path        string `json:"path,omitempty"`
	AutoRefresh bool   `json:"autoRefresh,omitempty"`
}

// Result reports a stored playlist.
type Result struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Channels int    `json:"channels"`
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	ReadFile           func(path string) (string, error)
	WatchDebounce      time.Duration
	RefreshConcurrency int
}

// Service imports and refreshes playlists.
type Service struct {
	store   *library.Store
	fetcher Fetcher
	notices notify.Sink
	opts    Options
	logger  zerolog.Logger
	rescan  chan struct{}
}

// New returns an ingest service writing to store.
func New(store *library.Store, fetcher Fetcher, notices notify.Sink, opts Options) *Service {
	if opts.ReadFile == nil {
		opts.ReadFile = fetch.ReadFile
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = 250 * time.Millisecond
	}
	if opts.RefreshConcurrency <= 0 {
		opts.RefreshConcurrency = 4
	}
	if notices == nil {
		notices = notify.Discard{}
	}
	return &Service{
		store:   store,
		fetcher: fetcher,
		notices: notices,
		opts:    opts,
		logger:  xglog.WithComponent("ingest"),
		rescan:  make(chan struct{}, 1),
	}
}

// Import loads, parses and stores a playlist. The stored playlist becomes the
// current one with the channel pointer at 0.
func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(req.Name)
	rawURL := strings.TrimSpace(req.URL)
	path := strings.TrimSpace(req.Path)

	switch {
	case name == "":
		s.notices.Notify(notify.KindError, "Playlist name is empty")
		return Result{}, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	case (rawURL == "") == (path == ""):
		return Result{}, fmt.Errorf("%w: exactly one of url or path is required", ErrInvalidRequest)
	}

	p := library.Playlist{Name: name, AutoRefresh: req.AutoRefresh}
	if rawURL != "" {
		p.SourceKind, p.SourceLocator = library.SourceRemote, rawURL
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		p.SourceKind, p.SourceLocator = library.SourceLocal, abs
	}

	channels, err := s.load(ctx, p)
	if err != nil {
		s.notifyLoadError(err)
		return Result{}, err
	}
	p.Channels = channels

	index, err := s.store.Upsert(ctx, p)
	if err != nil {
		return Result{}, err
	}
	s.notices.Notify(notify.KindInfo, "Playlist saved")
	s.logger.Info().
		Str(xglog.FieldEvent, "ingest.imported").
		Str(xglog.FieldPlaylist, name).
		Str(xglog.FieldSource, string(p.SourceKind)).
		Int(xglog.FieldChannelCount, len(channels)).
		Msg("playlist imported")

	if p.SourceKind == library.SourceLocal && p.AutoRefresh {
		s.requestRescan()
	}
	return Result{Index: index, Name: name, Channels: len(channels)}, nil
}

// load reads and parses the playlist's source.
func (s *Service) load(ctx context.Context, p library.Playlist) ([]m3u.Channel, error) {
	var (
		text string
		err  error
	)
	if p.SourceKind == library.SourceLocal {
		text, err = s.opts.ReadFile(p.SourceLocator)
	} else {
		text, err = s.fetcher.Fetch(ctx, p.SourceLocator)
	}
	if err != nil {
		return nil, err
	}
	channels := m3u.Parse(text)
	if len(channels) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return channels, nil
}

func (s *Service) notifyLoadError(err error) {
	var failure *fetch.FailureError
	switch {
	case errors.As(err, &failure):
		s.notices.Notify(notify.KindError, failure.UserMessage())
	case errors.Is(err, fetch.ErrFileUnreadable):
		s.notices.Notify(notify.KindError, "Cannot read playlist file")
	case errors.Is(err, ErrEmptyPlaylist):
		s.notices.Notify(notify.KindError, "Playlist has no channels")
	case errors.Is(err, fetch.ErrInvalidURL):
		s.notices.Notify(notify.KindError, "Invalid playlist URL")
	default:
		s.notices.Notify(notify.KindError, "Failed to load playlist")
	}
}

// Refresh re-reads the playlist at index and replaces its channels. On any
// failure the stored channel list is kept.
func (s *Service) Refresh(ctx context.Context, index int, trigger string) (Result, error) {
	p, ok := s.store.Playlist(index)
	if !ok {
		return Result{}, fmt.Errorf("%w: index %d", library.ErrNoSuchPlaylist, index)
	}

	channels, err := s.load(ctx, p)
	metrics.RecordRefresh(trigger, err)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "ingest.refresh_failed").
			Str(xglog.FieldPlaylist, p.Name).
			Str("trigger", trigger).
			Int("cached_channels", len(p.Channels)).
			Msg("refresh failed, keeping cached channels")
		return Result{}, err
	}

	matched, err := s.store.ReplaceChannels(ctx, p.SourceLocator, channels)
	if err != nil {
		return Result{}, err
	}
	if !matched {
		// Removed while the refresh was in flight.
		return Result{}, fmt.Errorf("%w: index %d", library.ErrNoSuchPlaylist, index)
	}
	s.logger.Info().
		Str(xglog.FieldEvent, "ingest.refreshed").
		Str(xglog.FieldPlaylist, p.Name).
		Str("trigger", trigger).
		Int(xglog.FieldChannelCount, len(channels)).
		Msg("playlist refreshed")
	return Result{Index: index, Name: p.Name, Channels: len(channels)}, nil
}

// RefreshAll refreshes every remote playlist flagged autoRefresh. Failures
// are logged and leave the cached channels in place; the returned count is
// the number of playlists refreshed.
func (s *Service) RefreshAll(ctx context.Context) int {
	var g errgroup.Group
	g.SetLimit(s.opts.RefreshConcurrency)

	var refreshed atomic.Int32
	for _, sum := range s.store.Summaries() {
		if !sum.AutoRefresh || sum.SourceKind != library.SourceRemote {
			continue
		}
		index := sum.Index
		g.Go(func() error {
			if _, err := s.Refresh(ctx, index, TriggerStartup); err == nil {
				refreshed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(refreshed.Load())
}

func (s *Service) requestRescan() {
	select {
	case s.rescan <- struct{}{}:
	default:
	}
}
