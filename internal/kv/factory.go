// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kv

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Path is a directory for file/badger and a database file for sqlite.
	// Relative paths are resolved against DataDir.
	Path    string
	DataDir string
	Redis   RedisConfig
}

// Open creates a Store based on the backend configuration.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendFile
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return OpenFileStore(resolvePath(cfg, "library"))
	case BackendSQLite:
		return OpenSQLiteStore(resolvePath(cfg, "library.db"), DefaultSQLiteConfig())
	case BackendBadger:
		return OpenBadgerStore(resolvePath(cfg, "library.badger"))
	case BackendRedis:
		return OpenRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}

func resolvePath(cfg Config, def string) string {
	p := cfg.Path
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) || cfg.DataDir == "" {
		return p
	}
	return filepath.Join(cfg.DataDir, p)
}
