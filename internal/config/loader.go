// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config resolves the runtime configuration with precedence
// ENV > YAML file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/ManuGH/playm3u/internal/kv"
	"github.com/ManuGH/playm3u/internal/player"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment key read by the loader.
const EnvPrefix = "PLAYM3U_"

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for configPath ("" for no file).
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "data",
		LogLevel: "info",
		Store: StoreConfig{
			Backend: kv.BackendFile,
			Redis:   RedisConfig{KeyPrefix: "playm3u:"},
		},
		Fetch: FetchConfig{
			Timeout:      fetch.DefaultAttemptTimeout,
			Relays:       append([]string(nil), fetch.DefaultRelays...),
			MaxBodyBytes: fetch.DefaultMaxBodyBytes,
			UserAgent:    "playm3u",
		},
		Playback: PlaybackConfig{
			OverlayDuration:    player.DefaultOverlayDuration,
			NumericCommitDelay: player.DefaultNumericCommitDelay,
			ReadyTimeout:       player.DefaultReadyTimeout,
			HLS:                true,
			DASH:               true,
			StopGrace:          3 * time.Second,
			ResumeOnStart:      true,
		},
		Ingest: IngestConfig{
			RefreshOnStart: true,
			WatchLocal:     true,
			WatchDebounce:  250 * time.Millisecond,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:8089",
			RateLimit:  240,
			KeyRate:    10,
			KeyBurst:   4,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// Load resolves defaults, then the YAML file, then the environment, and
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile parses a YAML file strictly: unknown keys and trailing documents
// are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func mergeFile(cfg *AppConfig, f *FileConfig) {
	set(&cfg.DataDir, f.DataDir)
	set(&cfg.LogLevel, f.LogLevel)

	if s := f.Store; s != nil {
		set(&cfg.Store.Backend, s.Backend)
		set(&cfg.Store.Path, s.Path)
		if r := s.Redis; r != nil {
			set(&cfg.Store.Redis.Addr, r.Addr)
			set(&cfg.Store.Redis.Password, r.Password)
			set(&cfg.Store.Redis.DB, r.DB)
			set(&cfg.Store.Redis.KeyPrefix, r.KeyPrefix)
		}
	}
	if fe := f.Fetch; fe != nil {
		set(&cfg.Fetch.Timeout, fe.Timeout)
		if fe.Relays != nil {
			cfg.Fetch.Relays = fe.Relays
		}
		set(&cfg.Fetch.MaxBodyBytes, fe.MaxBodyBytes)
		set(&cfg.Fetch.UserAgent, fe.UserAgent)
	}
	if p := f.Playback; p != nil {
		set(&cfg.Playback.OverlayDuration, p.OverlayDuration)
		set(&cfg.Playback.NumericCommitDelay, p.NumericCommitDelay)
		set(&cfg.Playback.ReadyTimeout, p.ReadyTimeout)
		set(&cfg.Playback.HLS, p.HLS)
		set(&cfg.Playback.DASH, p.DASH)
		set(&cfg.Playback.PlayerBin, p.PlayerBin)
		if p.PlayerArgs != nil {
			cfg.Playback.PlayerArgs = p.PlayerArgs
		}
		set(&cfg.Playback.StopGrace, p.StopGrace)
		set(&cfg.Playback.ResumeOnStart, p.ResumeOnStart)
	}
	if i := f.Ingest; i != nil {
		set(&cfg.Ingest.RefreshOnStart, i.RefreshOnStart)
		set(&cfg.Ingest.WatchLocal, i.WatchLocal)
		set(&cfg.Ingest.WatchDebounce, i.WatchDebounce)
	}
	if a := f.API; a != nil {
		set(&cfg.API.ListenAddr, a.ListenAddr)
		set(&cfg.API.RateLimit, a.RateLimit)
		set(&cfg.API.KeyRate, a.KeyRate)
		set(&cfg.API.KeyBurst, a.KeyBurst)
	}
	if t := f.Telemetry; t != nil {
		set(&cfg.Telemetry.Enabled, t.Enabled)
		set(&cfg.Telemetry.Exporter, t.Exporter)
		set(&cfg.Telemetry.Endpoint, t.Endpoint)
		set(&cfg.Telemetry.Environment, t.Environment)
		set(&cfg.Telemetry.SamplingRate, t.SamplingRate)
	}
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString(l.key("DATA_DIR"), cfg.DataDir)
	// LOG_LEVEL is honoured as a fallback for parity with other services.
	cfg.LogLevel = ParseString(l.key("LOG_LEVEL"), ParseString("LOG_LEVEL", cfg.LogLevel))

	cfg.Store.Backend = ParseString(l.key("STORE_BACKEND"), cfg.Store.Backend)
	cfg.Store.Path = ParseString(l.key("STORE_PATH"), cfg.Store.Path)
	cfg.Store.Redis.Addr = ParseString(l.key("REDIS_ADDR"), cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = ParseString(l.key("REDIS_PASSWORD"), cfg.Store.Redis.Password)
	cfg.Store.Redis.DB = ParseInt(l.key("REDIS_DB"), cfg.Store.Redis.DB)
	cfg.Store.Redis.KeyPrefix = ParseString(l.key("REDIS_KEY_PREFIX"), cfg.Store.Redis.KeyPrefix)

	cfg.Fetch.Timeout = ParseDuration(l.key("FETCH_TIMEOUT"), cfg.Fetch.Timeout)
	cfg.Fetch.Relays = ParseList(l.key("FETCH_RELAYS"), cfg.Fetch.Relays)
	cfg.Fetch.MaxBodyBytes = int64(ParseInt(l.key("FETCH_MAX_BODY_BYTES"), int(cfg.Fetch.MaxBodyBytes)))
	cfg.Fetch.UserAgent = ParseString(l.key("FETCH_USER_AGENT"), cfg.Fetch.UserAgent)

	cfg.Playback.OverlayDuration = ParseDuration(l.key("OVERLAY_DURATION"), cfg.Playback.OverlayDuration)
	cfg.Playback.NumericCommitDelay = ParseDuration(l.key("NUMERIC_COMMIT_DELAY"), cfg.Playback.NumericCommitDelay)
	cfg.Playback.ReadyTimeout = ParseDuration(l.key("READY_TIMEOUT"), cfg.Playback.ReadyTimeout)
	cfg.Playback.HLS = ParseBool(l.key("HLS"), cfg.Playback.HLS)
	cfg.Playback.DASH = ParseBool(l.key("DASH"), cfg.Playback.DASH)
	cfg.Playback.PlayerBin = ParseString(l.key("PLAYER_BIN"), cfg.Playback.PlayerBin)
	if v := ParseString(l.key("PLAYER_ARGS"), ""); v != "" {
		cfg.Playback.PlayerArgs = strings.Fields(v)
	}
	cfg.Playback.StopGrace = ParseDuration(l.key("STOP_GRACE"), cfg.Playback.StopGrace)
	cfg.Playback.ResumeOnStart = ParseBool(l.key("RESUME_ON_START"), cfg.Playback.ResumeOnStart)

	cfg.Ingest.RefreshOnStart = ParseBool(l.key("REFRESH_ON_START"), cfg.Ingest.RefreshOnStart)
	cfg.Ingest.WatchLocal = ParseBool(l.key("WATCH_LOCAL"), cfg.Ingest.WatchLocal)
	cfg.Ingest.WatchDebounce = ParseDuration(l.key("WATCH_DEBOUNCE"), cfg.Ingest.WatchDebounce)

	cfg.API.ListenAddr = ParseString(l.key("LISTEN_ADDR"), cfg.API.ListenAddr)
	cfg.API.RateLimit = ParseInt(l.key("RATE_LIMIT"), cfg.API.RateLimit)
	cfg.API.KeyRate = ParseFloat(l.key("KEY_RATE"), cfg.API.KeyRate)
	cfg.API.KeyBurst = ParseInt(l.key("KEY_BURST"), cfg.API.KeyBurst)

	cfg.Telemetry.Enabled = ParseBool(l.key("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.key("OTEL_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.key("OTEL_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = ParseString(l.key("OTEL_ENVIRONMENT"), cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = ParseFloat(l.key("OTEL_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}
