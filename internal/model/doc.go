// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// # Key Types
//
//   - Session: one conversation thread with its ordered transcript
//   - Message: a single turn, possibly a streaming placeholder
//   - Event: a transcript transition consumed by Reconcile
//   - Stats: totals across all sessions
//
// # Reconciliation
//
// All transcript changes made while streaming go through Reconcile, which
// never mutates its input:
//
//	msgs = model.Reconcile(msgs, model.AppendPlaceholder{Message: model.NewPlaceholder()})
//	msgs = model.Reconcile(msgs, model.UpdateStreamingContent{ID: id, Content: acc})
//	msgs = model.Reconcile(msgs, model.Finalize{ID: id, Content: acc})
//
// At most one message in a transcript is streaming at a time.
package model
