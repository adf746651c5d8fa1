// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the JSON control surface of the player: playlist
// management, channel switching, numeric keys and the notice feed.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/playm3u/internal/api/middleware"
	"github.com/ManuGH/playm3u/internal/ingest"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/ManuGH/playm3u/internal/player"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Player is the playback surface driven by the API.
type Player interface {
	PlayChannel(ctx context.Context, index int) error
	ChannelUp(ctx context.Context) error
	ChannelDown(ctx context.Context) error
	PressDigit(ctx context.Context, d int) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot(ctx context.Context) (player.Snapshot, error)
}

// Ingester imports and refreshes playlists.
type Ingester interface {
	Import(ctx context.Context, req ingest.Request) (ingest.Result, error)
	Refresh(ctx context.Context, index int, trigger string) (ingest.Result, error)
}

// NoticeFeed lists recent notices.
type NoticeFeed interface {
	Since(after uint64) []notify.Notice
}

// Config tunes the HTTP surface.
type Config struct {
	Version string
	// RateLimit is requests per minute per client; 0 disables it.
	RateLimit int
	// KeyRate and KeyBurst throttle /api/keys per client; KeyRate 0 disables it.
	KeyRate  float64
	KeyBurst int
	// Tracing enables server spans for every request.
	Tracing bool
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Library *library.Store
	Player  Player
	Ingest  Ingester
	Notices NoticeFeed
}

// Server routes control requests to the library, ingest service and player.
type Server struct {
	cfg    Config
	lib    *library.Store
	player Player
	ingest Ingester
	feed   NoticeFeed
	keys   *middleware.KeyLimiter
	logger zerolog.Logger
}

// New returns a Server. Call Handler to obtain the router.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		lib:    deps.Library,
		player: deps.Player,
		ingest: deps.Ingest,
		feed:   deps.Notices,
		logger: xglog.WithComponent("api"),
	}
	if cfg.KeyRate > 0 {
		s.keys = middleware.NewKeyLimiter(cfg.KeyRate, cfg.KeyBurst)
	}
	return s
}

// Handler builds the chi router with the middleware stack.
func (s *Server) Handler() http.Handler {
	stack := middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
		RateLimit:     s.cfg.RateLimit,
	}
	if s.cfg.Tracing {
		stack.TracingService = "playm3u-api"
	}
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Get("/playlists", s.handleListPlaylists)
		r.Post("/playlists", s.handleImport)
		r.Route("/playlists/{index}", func(r chi.Router) {
			r.Get("/", s.handleGetPlaylist)
			r.Delete("/", s.handleDeletePlaylist)
			r.Post("/select", s.handleSelectPlaylist)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/export.m3u", s.handleExport)
		})

		r.Post("/channels/{index}/play", s.handlePlay)
		r.Post("/channel/up", s.handleChannelUp)
		r.Post("/channel/down", s.handleChannelDown)
		r.Post("/stop", s.handleStop)

		r.Group(func(r chi.Router) {
			if s.keys != nil {
				r.Use(s.keys.Handler)
			}
			r.Post("/keys/{digit}", s.handleKey)
		})

		r.Get("/notices", s.handleNotices)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.cfg.Version})
}

// indexParam parses a non-negative integer path parameter.
func indexParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
