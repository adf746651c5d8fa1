// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command playm3u runs the playlist player daemon. The parse and fetch
// subcommands inspect a playlist without starting the daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/playm3u/internal/config"
	"github.com/ManuGH/playm3u/internal/daemon"
	"github.com/ManuGH/playm3u/internal/fetch"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("playm3u", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: playm3u [-config file] [serve | parse <file> | fetch <url>]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Output: stderr, Service: "playm3u", Version: version.Version})
	logger := xglog.WithComponent("main")

	cfg, err := config.NewLoader(*configPath, version.Version).Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
		return 1
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Output: stderr, Service: "playm3u", Version: cfg.Version})

	rest := fs.Args()
	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "serve":
		return serve(ctx, cfg)
	case "parse":
		if len(rest) != 1 {
			fs.Usage()
			return 2
		}
		return parseFile(rest[0], stdout, stderr)
	case "fetch":
		if len(rest) != 1 {
			fs.Usage()
			return 2
		}
		return fetchURL(ctx, cfg, rest[0], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
}

func serve(ctx context.Context, cfg config.AppConfig) int {
	logger := xglog.WithComponent("main")
	logger.Info().
		Str(xglog.FieldEvent, "daemon.starting").
		Str("listen", cfg.API.ListenAddr).
		Str("data_dir", cfg.DataDir).
		Msg("starting playm3u")

	app, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.build_failed").Msg("startup failed")
		return 1
	}
	if err := app.Run(ctx); err != nil {
		return 1
	}
	return 0
}

// parseFile prints the channels of a local playlist as JSON.
func parseFile(path string, stdout, stderr io.Writer) int {
	text, err := fetch.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return printChannels(m3u.Parse(text), stdout, stderr)
}

// fetchURL downloads a playlist through the configured access paths and
// prints its channels as JSON.
func fetchURL(ctx context.Context, cfg config.AppConfig, rawURL string, stdout, stderr io.Writer) int {
	f := fetch.New(fetch.Config{
		AttemptTimeout: cfg.Fetch.Timeout,
		Relays:         cfg.Fetch.Relays,
		MaxBodyBytes:   cfg.Fetch.MaxBodyBytes,
		UserAgent:      cfg.Fetch.UserAgent,
	}, fetch.NewClient(cfg.Fetch.Timeout))

	text, err := f.Fetch(ctx, rawURL)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return printChannels(m3u.Parse(text), stdout, stderr)
}

func printChannels(channels []m3u.Channel, stdout, stderr io.Writer) int {
	if len(channels) == 0 {
		fmt.Fprintln(stderr, "playlist has no channels")
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(channels); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
