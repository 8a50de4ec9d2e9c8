// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// # Sections
//
//   - [cloud]: OpenRouter key, base URL, model and generation parameters,
//     attribution headers, outbound throttle and header timeout
//   - [storage]: session backend (file, sqlite, redis, memory)
//   - [logging]: logrus level, format and output file
//   - [metrics]: Prometheus endpoint
//   - [ui]: REPL rendering options
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*)
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// RIGCHAT_HOME relocates the ~/.rigchat directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := cloud.NewClient(cloud.WithBaseURL(cfg.Cloud.BaseURL))
package config
