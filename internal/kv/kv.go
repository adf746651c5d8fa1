// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package kv provides the key-value persistence used for the playlist library.
// Values are opaque bytes; callers store JSON documents and always read and
// write whole values.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned by Get when the key has never been written or was deleted.
	ErrNotFound = errors.New("kv: key not found")
	// ErrInvalidKey rejects keys that cannot be mapped safely onto every backend.
	ErrInvalidKey = errors.New("kv: invalid key")
	// ErrCorrupt classifies values that exist but cannot be decoded.
	ErrCorrupt = errors.New("kv: corrupt value")
)

// Store is a string-keyed byte store.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the whole value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// ValidateKey checks that key is usable as a file name, SQL value and redis key alike.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// GetJSON decodes the value stored under key into v. It returns ErrNotFound
// for absent keys and an error wrapping ErrCorrupt for undecodable values.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
