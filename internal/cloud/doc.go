// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud talks to OpenRouter's chat completions API.
//
// # Key Types
//
//   - Client: streams a completion and decodes it into fragments
//   - Decoder: incremental event-stream decoder with a tagged Frame result
//   - CompletionRequest: built by BuildRequest from a transcript
//   - Error: typed failure with an ErrorKind, matched with errors.Is
//   - Improver: one-shot prompt rewriting via go-openai
//
// # Usage
//
//	req := cloud.BuildRequest(prior, "explain recursion", systemPrompt, params)
//	stats, err := client.Stream(ctx, token, req, func(fragment string) {
//	    acc += fragment
//	})
//	if errors.Is(err, cloud.ErrAuthentication) {
//	    // ask for a new key
//	}
//
// API keys are never logged. KeyFingerprint gives a short SHA-256 prefix
// for correlating log lines instead.
package cloud
