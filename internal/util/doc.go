// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared across rigchat.
//
// String helpers are rune-aware so titles and previews never split a
// multi-byte character. AtomicWriteFile is the crash-safe write used by the
// file storage backend and the config writer.
//
//	title := util.Ellipsize(firstLine, 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
