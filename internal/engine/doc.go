// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine runs one streamed completion against a session.
//
// A send moves through Idle, Sending, Streaming and ends Finalized or
// Failed. The user turn is persisted first, then an empty streaming
// placeholder is appended. Every fragment replaces the placeholder's
// content with the full accumulated text. On success the placeholder is
// finalized and persisted; on any failure, cancellation included, it is
// removed and the partial text is discarded.
//
// At most one send runs per session. Sends on different sessions run
// concurrently.
//
// # Usage
//
//	runner := engine.NewRunner(store, client, engine.StaticCredential(key),
//	    engine.WithParams(cfg.GenerationParams()),
//	    engine.WithNotifier(engine.NewBellNotifier(os.Stdout)),
//	)
//	res, err := runner.Send(ctx, sessionID, engine.Input{Text: "hi"})
package engine
