package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/playm3u/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, fetch.DefaultRelays, cfg.Fetch.Relays)
	assert.Equal(t, 4*time.Second, cfg.Playback.OverlayDuration)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.NumericCommitDelay)
	assert.Equal(t, 30*time.Second, cfg.Playback.ReadyTimeout)
	assert.True(t, cfg.Playback.HLS)
	assert.True(t, cfg.Playback.DASH)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataDir: /var/lib/playm3u
logLevel: debug
store:
  backend: sqlite
fetch:
  timeout: 5s
  relays:
    - "https://relay.example/?u={url}"
playback:
  dash: false
  readyTimeout: 0s
  playerBin: mpv
  playerArgs: ["--fs", "{url}"]
api:
  listenAddr: ":9000"
`)
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/playm3u", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"https://relay.example/?u={url}"}, cfg.Fetch.Relays)
	assert.False(t, cfg.Playback.DASH)
	assert.True(t, cfg.Playback.HLS, "untouched keys keep defaults")
	assert.Equal(t, time.Duration(0), cfg.Playback.ReadyTimeout)
	assert.Equal(t, []string{"--fs", "{url}"}, cfg.Playback.PlayerArgs)
	assert.Equal(t, ":9000", cfg.API.ListenAddr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\nfetch:\n  timeout: 5s\n")
	t.Setenv("PLAYM3U_STORE_BACKEND", "badger")
	t.Setenv("PLAYM3U_FETCH_TIMEOUT", "9s")
	t.Setenv("PLAYM3U_FETCH_RELAYS", "https://a/{url}, https://b/{url} ,")
	t.Setenv("PLAYM3U_HLS", "no")
	t.Setenv("PLAYM3U_PLAYER_ARGS", "--really-quiet {url}")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, 9*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, []string{"https://a/{url}", "https://b/{url}"}, cfg.Fetch.Relays)
	assert.False(t, cfg.Playback.HLS)
	assert.Equal(t, []string{"--really-quiet", "{url}"}, cfg.Playback.PlayerArgs)
	assert.Contains(t, l.ConsumedEnvKeys, "PLAYM3U_STORE_BACKEND")
}

func TestLoad_StrictYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
	}{
		{name: "unknown key", content: "store:\n  engine: sqlite\n"},
		{name: "unknown section", content: "openwebif:\n  host: x\n"},
		{name: "multiple documents", content: "logLevel: info\n---\nlogLevel: debug\n"},
		{name: "wrong type", content: "api:\n  rateLimit: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.content), "dev").Load()
			assert.Error(t, err)
		})
	}

	_, err := NewLoader(filepath.Join(t.TempDir(), "config.json"), "dev").Load()
	assert.ErrorContains(t, err, "only YAML supported")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, ""), "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{name: "unknown backend", mutate: func(c *AppConfig) { c.Store.Backend = "etcd" }, want: "store.backend"},
		{name: "redis without addr", mutate: func(c *AppConfig) { c.Store.Backend = "redis" }, want: "store.redis.addr"},
		{name: "relay without placeholder", mutate: func(c *AppConfig) { c.Fetch.Relays = []string{"https://relay/"} }, want: "placeholder"},
		{name: "zero fetch timeout", mutate: func(c *AppConfig) { c.Fetch.Timeout = 0 }, want: "fetch.timeout"},
		{name: "negative ready timeout", mutate: func(c *AppConfig) { c.Playback.ReadyTimeout = -time.Second }, want: "readyTimeout"},
		{name: "bad listen addr", mutate: func(c *AppConfig) { c.API.ListenAddr = "localhost" }, want: "api.listenAddr"},
		{name: "bad log level", mutate: func(c *AppConfig) { c.LogLevel = "loud" }, want: "logLevel"},
		{name: "telemetry exporter", mutate: func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, want: "telemetry.exporter"},
		{name: "sampling range", mutate: func(c *AppConfig) { c.Telemetry.SamplingRate = 2 }, want: "samplingRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Validate(Defaults()))
}
