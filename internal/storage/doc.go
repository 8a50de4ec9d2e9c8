// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists rigchat sessions in a key-value backend.
//
// All sessions are serialized together as one JSON object (session id to
// session) under a single key. Backends only move opaque bytes:
//
//   - MemoryBackend: process-local map, used by tests and --storage=memory
//   - FileBackend: one file per key, written atomically; can watch for
//     external edits with fsnotify
//   - SQLiteBackend: a single kv table (modernc.org/sqlite, no cgo)
//   - RedisBackend: prefixed string keys (go-redis)
//
// # Usage
//
//	be, err := storage.Open(storage.Options{Kind: storage.KindFile, Path: dir})
//	blob, err := be.Get(ctx, storage.SessionsKey)
//	sessions, err := storage.DecodeSessions(blob)
//
// # Storage Location
//
// The file and sqlite backends default to ~/.rigchat/.
package storage
