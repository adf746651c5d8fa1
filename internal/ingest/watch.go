package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/fsnotify/fsnotify"
)

// Watch re-reads local autoRefresh playlists when their files change. It
// blocks until ctx is cancelled. Directories are watched rather than files
// so that editors replacing the file are noticed.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := map[string]bool{}
	dirs := map[string]bool{}
	resync := func() {
		clear(watched)
		for _, sum := range s.store.Summaries() {
			if !sum.AutoRefresh || sum.SourceKind != library.SourceLocal {
				continue
			}
			path := filepath.Clean(sum.SourceLocator)
			watched[path] = true
			dir := filepath.Dir(path)
			if dirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				s.logger.Warn().
					Err(err).
					Str(xglog.FieldEvent, "ingest.watch_failed").
					Str(xglog.FieldPath, dir).
					Msg("cannot watch playlist directory")
				continue
			}
			dirs[dir] = true
		}
		s.logger.Info().
			Str(xglog.FieldEvent, "ingest.watch_synced").
			Int("files", len(watched)).
			Int("dirs", len(dirs)).
			Msg("watching local playlists")
	}
	resync()

	pending := map[string]bool{}
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case <-s.rescan:
			resync()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(ev.Name)
			if !watched[path] || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			pending[path] = true
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(s.opts.WatchDebounce)
			debounceC = debounce.C

		case <-debounceC:
			debounce, debounceC = nil, nil
			for path := range pending {
				s.refreshLocator(ctx, path)
			}
			clear(pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "ingest.watcher_error").
				Msg("playlist watcher error")
		}
	}
}

func (s *Service) refreshLocator(ctx context.Context, path string) {
	for _, sum := range s.store.Summaries() {
		if filepath.Clean(sum.SourceLocator) != path || sum.SourceKind != library.SourceLocal {
			continue
		}
		if _, err := s.Refresh(ctx, sum.Index, TriggerWatch); err == nil {
			s.notices.Notify(notify.KindInfo, fmt.Sprintf("Playlist %s updated", sum.Name))
		}
		return
	}
}
