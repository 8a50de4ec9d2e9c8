// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for rigchat.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed arguments with global and command-specific flags
//   - App: The storage, client and runner wired for one process
//   - ChatSession: State of the interactive REPL
//
// # Usage
//
//	os.Exit(cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
//
// # Commands Overview
//
//   - chat: Interactive chat with slash commands (default)
//   - ask: One question, streamed to stdout
//   - sessions: List, show and delete saved chats
//   - export: Write a chat as Markdown or JSON
//   - improve: Rewrite a prompt
//   - stats: Chat statistics
//   - config: Show and edit the config file
//
// All commands except chat support --json.
package cli
