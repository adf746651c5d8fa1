// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/kv"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks cfg and reports every problem found.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		add("dataDir is empty")
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("logLevel %q: %v", cfg.LogLevel, err)
	}

	switch cfg.Store.Backend {
	case kv.BackendMemory, kv.BackendFile, kv.BackendSQLite, kv.BackendBadger:
	case kv.BackendRedis:
		if cfg.Store.Redis.Addr == "" {
			add("store.redis.addr is required for the redis backend")
		}
		if cfg.Store.Redis.DB < 0 {
			add("store.redis.db must not be negative")
		}
	default:
		add("store.backend %q is not one of memory, file, sqlite, badger, redis", cfg.Store.Backend)
	}

	if cfg.Fetch.Timeout <= 0 {
		add("fetch.timeout must be positive")
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		add("fetch.maxBodyBytes must be positive")
	}
	for _, r := range cfg.Fetch.Relays {
		if !strings.Contains(r, fetch.URLPlaceholder) {
			add("fetch relay %q lacks the %s placeholder", r, fetch.URLPlaceholder)
		}
	}

	if cfg.Playback.OverlayDuration <= 0 {
		add("playback.overlayDuration must be positive")
	}
	if cfg.Playback.NumericCommitDelay <= 0 {
		add("playback.numericCommitDelay must be positive")
	}
	if cfg.Playback.ReadyTimeout < 0 {
		add("playback.readyTimeout must not be negative")
	}
	if cfg.Playback.StopGrace <= 0 {
		add("playback.stopGrace must be positive")
	}
	if cfg.Ingest.WatchDebounce <= 0 {
		add("ingest.watchDebounce must be positive")
	}

	if _, _, err := net.SplitHostPort(cfg.API.ListenAddr); err != nil {
		add("api.listenAddr %q: %v", cfg.API.ListenAddr, err)
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit must not be negative")
	}
	if cfg.API.KeyRate <= 0 || cfg.API.KeyBurst <= 0 {
		add("api.keyRate and api.keyBurst must be positive")
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter %q is not grpc or http", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint is required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate must be within [0, 1]")
	}

	return errors.Join(errs...)
}
