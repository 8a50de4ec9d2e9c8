// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session is the in-memory, write-through collection of chat
// sessions.
//
// A Store owns every session and the active session pointer. Each mutation
// re-serializes all sessions to the storage backend while holding a single
// write lock, so concurrent finalizations on different sessions cannot
// overwrite one another. Streaming increments applied with persist=false
// only change memory.
//
//	st, err := session.Open(ctx, backend, session.WithLogger(log))
//	if errors.Is(err, storage.ErrCorruptData) {
//	    // st is usable and empty
//	}
//	s, _ := st.Create(ctx)
//	st.AppendToActive(ctx, msgs)
package session
