// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles the player from its configuration and runs it:
// the playback controller, the local playlist watcher, the startup refresh
// and the control API share one lifecycle.
package daemon

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/playm3u/internal/config"
	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/player"
)

const hookTimeout = 10 * time.Second

// App owns the long-lived runtime and delegates HTTP serving to Manager.
type App struct {
	cfg        config.AppConfig
	logger     zerolog.Logger
	store      *library.Store
	controller *player.Controller
	ingest     *ingest.Service
	manager    *Manager
	hooks      []namedHook
}

// RegisterShutdownHook registers a cleanup function run after every
// subsystem has stopped. Hooks run in reverse registration order.
func (a *App) RegisterShutdownHook(name string, hook ShutdownHook) {
	a.hooks = append(a.hooks, namedHook{name: name, hook: hook})
}

// Addr returns the control API address, or nil before it is bound.
func (a *App) Addr() net.Addr { return a.manager.Addr() }

// Ready is closed once the control API accepts connections.
func (a *App) Ready() <-chan struct{} { return a.manager.Ready() }

// Run starts every subsystem and blocks until ctx is cancelled or one of
// them fails. Shutdown hooks run before Run returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.controller.Run(gctx) })
	g.Go(func() error { return a.manager.Start(gctx) })

	if a.cfg.Ingest.WatchLocal {
		g.Go(func() error {
			// A missing watcher degrades to manual refresh only.
			if err := a.ingest.Watch(gctx); err != nil {
				a.logger.Warn().
					Err(err).
					Str(xglog.FieldEvent, "ingest.watcher_start_failed").
					Msg("local playlist watcher unavailable")
			}
			return nil
		})
	}

	g.Go(func() error {
		a.startup(gctx)
		return nil
	})

	err := g.Wait()

	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()
	if hookErr := runHooks(hookCtx, a.logger, a.hooks); hookErr != nil {
		err = errors.Join(err, hookErr)
	}

	if err != nil {
		a.logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped with errors")
		return err
	}
	a.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return nil
}

// startup refreshes remote playlists and resumes the last channel.
func (a *App) startup(ctx context.Context) {
	if a.cfg.Ingest.RefreshOnStart {
		n := a.ingest.RefreshAll(ctx)
		a.logger.Info().
			Str(xglog.FieldEvent, "ingest.startup_refresh").
			Int("refreshed", n).
			Msg("startup refresh finished")
	}

	if !a.cfg.Playback.ResumeOnStart || a.store.Len() == 0 {
		return
	}
	if err := a.controller.Resume(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "player.resume_failed").
			Msg("could not resume last channel")
	}
}
