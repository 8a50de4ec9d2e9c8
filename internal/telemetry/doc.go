// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records what happens to completion sends.
//
// Two sinks are provided:
//
//   - Prometheus metrics (send outcomes, fragments, dropped stream lines,
//     stream duration and time to first fragment), exposed by Serve.
//   - A UsageTracker that keeps per-model totals for the running process
//     and the slowest sends, shown by /stats.
//
// # Usage
//
//	telemetry.InitMetrics()
//	rec := telemetry.NewRecorder(telemetry.NewUsageTracker())
//	runner := engine.NewRunner(store, client, creds, engine.WithRecorder(rec))
//
// # Privacy
//
// Nothing is transmitted. Message content is never recorded, only counts
// and timings.
package telemetry
