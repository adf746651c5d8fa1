// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"

	"github.com/ManuGH/playm3u/internal/api"
	"github.com/ManuGH/playm3u/internal/backend"
	"github.com/ManuGH/playm3u/internal/config"
	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/kv"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/ManuGH/playm3u/internal/player"
	"github.com/ManuGH/playm3u/internal/telemetry"
)

// Build wires every component from cfg. The returned App has not started
// anything yet; resources opened here are released by its shutdown hooks,
// or immediately when Build fails.
func Build(ctx context.Context, cfg config.AppConfig) (_ *App, err error) {
	app := &App{cfg: cfg, logger: xglog.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = runHooks(context.WithoutCancel(ctx), app.logger, app.hooks)
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "playm3u",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	app.RegisterShutdownHook("telemetry", tp.Shutdown)

	backendStore, err := kv.Open(ctx, kv.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		DataDir: cfg.DataDir,
		Redis: kv.RedisConfig{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	app.RegisterShutdownHook("store", func(context.Context) error { return backendStore.Close() })

	app.store = library.NewStore(backendStore)
	if err := app.store.Load(ctx); err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}

	feed := notify.NewFeed(notify.DefaultCapacity)
	client := fetch.NewClient(cfg.Fetch.Timeout)
	fetcher := fetch.New(fetch.Config{
		AttemptTimeout: cfg.Fetch.Timeout,
		Relays:         cfg.Fetch.Relays,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		UserAgent:      cfg.Fetch.UserAgent,
	}, client)

	app.ingest = ingest.New(app.store, fetcher, feed, ingest.Options{
		WatchDebounce: cfg.Ingest.WatchDebounce,
	})

	app.controller = player.New(player.Config{
		OverlayDuration:    cfg.Playback.OverlayDuration,
		NumericCommitDelay: cfg.Playback.NumericCommitDelay,
		ReadyTimeout:       cfg.Playback.ReadyTimeout,
		Capabilities:       backend.Capabilities{HLS: cfg.Playback.HLS, DASH: cfg.Playback.DASH},
	}, app.store, backend.NewFactory(client), newSink(cfg.Playback), feed)

	srv := api.New(api.Config{
		Version:   cfg.Version,
		RateLimit: cfg.API.RateLimit,
		KeyRate:   cfg.API.KeyRate,
		KeyBurst:  cfg.API.KeyBurst,
		Tracing:   cfg.Telemetry.Enabled,
	}, api.Deps{
		Library: app.store,
		Player:  app.controller,
		Ingest:  app.ingest,
		Notices: feed,
	})

	app.manager, err = NewManager(DefaultServerConfig(cfg.API.ListenAddr), srv.Handler())
	if err != nil {
		return nil, err
	}

	app.logger.Info().
		Str(xglog.FieldEvent, "daemon.built").
		Str("store", backendOrDefault(cfg.Store.Backend)).
		Int("playlists", app.store.Len()).
		Bool("headless", cfg.Playback.PlayerBin == "").
		Msg("daemon assembled")
	return app, nil
}

// newSink runs the configured external player, or renders nothing when no
// player binary is set.
func newSink(cfg config.PlaybackConfig) backend.Sink {
	if cfg.PlayerBin == "" {
		return &backend.NullSink{}
	}
	return backend.NewProcessSink(backend.ProcessConfig{
		Binary: cfg.PlayerBin,
		Args:   cfg.PlayerArgs,
		Grace:  cfg.StopGrace,
	})
}

func backendOrDefault(name string) string {
	if name == "" {
		return kv.BackendFile
	}
	return name
}
