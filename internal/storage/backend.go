// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// SessionsKey is the key all sessions are stored under.
const SessionsKey = "rigchat-sessions"

var (
	// ErrNotFound is returned by Get for a key that has never been set.
	ErrNotFound = errors.New("key not found")

	// ErrClosed is returned by any operation on a closed backend.
	ErrClosed = errors.New("storage closed")

	// ErrCorruptData is returned when a stored blob cannot be decoded.
	ErrCorruptData = errors.New("corrupt session data")
)

// Backend is a minimal key-value store.
type Backend interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources.
	Close() error
}

// Watcher is implemented by backends that can report changes made by other
// processes. onChange is called from a background goroutine until ctx is
// cancelled.
type Watcher interface {
	Watch(ctx context.Context, key string, onChange func()) error
}

// Kind names a backend implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
	KindRedis  Kind = "redis"
)

// Kinds lists the accepted backend names.
var Kinds = []Kind{KindFile, KindSQLite, KindRedis, KindMemory}

// Options selects and configures a backend.
type Options struct {
	Kind Kind

	// Path is the data directory for the file and sqlite backends.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindMemory:
		return NewMemoryBackend(), nil
	case KindFile, "":
		return NewFileBackend(opts.Path)
	case KindSQLite:
		return NewSQLiteBackend(ctx, filepath.Join(opts.Path, "rigchat.db"))
	case KindRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}
