// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version  string
	DataDir  string
	LogLevel string

	Store     StoreConfig
	Fetch     FetchConfig
	Playback  PlaybackConfig
	Ingest    IngestConfig
	API       APIConfig
	Telemetry TelemetryConfig
}

// StoreConfig selects the persistence backend for the playlist library.
type StoreConfig struct {
	Backend string
	Path    string
	Redis   RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// FetchConfig controls playlist downloads. Relays are URL templates with a
// {url} placeholder, tried in order after the direct request.
type FetchConfig struct {
	Timeout      time.Duration
	Relays       []string
	MaxBodyBytes int64
	UserAgent    string
}

// PlaybackConfig controls the player. ReadyTimeout 0 disables the readiness
// watchdog. An empty PlayerBin runs headless.
type PlaybackConfig struct {
	OverlayDuration    time.Duration
	NumericCommitDelay time.Duration
	ReadyTimeout       time.Duration
	HLS                bool
	DASH               bool
	PlayerBin          string
	PlayerArgs         []string
	StopGrace          time.Duration
	ResumeOnStart      bool
}

type IngestConfig struct {
	RefreshOnStart bool
	WatchLocal     bool
	WatchDebounce  time.Duration
}

// APIConfig controls the HTTP control surface. RateLimit is requests per
// minute per client; KeyRate and KeyBurst throttle numeric key presses.
type APIConfig struct {
	ListenAddr string
	RateLimit  int
	KeyRate    float64
	KeyBurst   int
}

type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Environment  string
	SamplingRate float64
}

// FileConfig is the YAML shape. Absent keys leave the defaults in place.
type FileConfig struct {
	DataDir  *string `yaml:"dataDir"`
	LogLevel *string `yaml:"logLevel"`

	Store *struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
		Redis   *struct {
			Addr      *string `yaml:"addr"`
			Password  *string `yaml:"password"`
			DB        *int    `yaml:"db"`
			KeyPrefix *string `yaml:"keyPrefix"`
		} `yaml:"redis"`
	} `yaml:"store"`

	Fetch *struct {
		Timeout      *time.Duration `yaml:"timeout"`
		Relays       []string       `yaml:"relays"`
		MaxBodyBytes *int64         `yaml:"maxBodyBytes"`
		UserAgent    *string        `yaml:"userAgent"`
	} `yaml:"fetch"`

	Playback *struct {
		OverlayDuration    *time.Duration `yaml:"overlayDuration"`
		NumericCommitDelay *time.Duration `yaml:"numericCommitDelay"`
		ReadyTimeout       *time.Duration `yaml:"readyTimeout"`
		HLS                *bool          `yaml:"hls"`
		DASH               *bool          `yaml:"dash"`
		PlayerBin          *string        `yaml:"playerBin"`
		PlayerArgs         []string       `yaml:"playerArgs"`
		StopGrace          *time.Duration `yaml:"stopGrace"`
		ResumeOnStart      *bool          `yaml:"resumeOnStart"`
	} `yaml:"playback"`

	Ingest *struct {
		RefreshOnStart *bool          `yaml:"refreshOnStart"`
		WatchLocal     *bool          `yaml:"watchLocal"`
		WatchDebounce  *time.Duration `yaml:"watchDebounce"`
	} `yaml:"ingest"`

	API *struct {
		ListenAddr *string  `yaml:"listenAddr"`
		RateLimit  *int     `yaml:"rateLimit"`
		KeyRate    *float64 `yaml:"keyRate"`
		KeyBurst   *int     `yaml:"keyBurst"`
	} `yaml:"api"`

	Telemetry *struct {
		Enabled      *bool    `yaml:"enabled"`
		Exporter     *string  `yaml:"exporter"`
		Endpoint     *string  `yaml:"endpoint"`
		Environment  *string  `yaml:"environment"`
		SamplingRate *float64 `yaml:"samplingRate"`
	} `yaml:"telemetry"`
}
