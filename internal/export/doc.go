// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes sessions to files.
//
// # Supported Formats
//
//   - Markdown: human-readable, with YAML frontmatter
//   - JSON: the persisted session shape, for re-import or tooling
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	path, err := export.ExportToFile(sess, exp, opts)
package export
