// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"github.com/jeranaias/rigchat/internal/model"
)

// Generation defaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ChatMessage is the wire form of a transcript message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the configured, not computed, request parameters.
type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// CompletionRequest is the body POSTed to /chat/completions.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// BuildRequest assembles a streaming completion request.
//
// prior must be the transcript before the new user message was appended;
// input is that new message's content and is always the last entry.
// Messages are projected to role and content only. Streaming placeholders
// in prior carry no content and are skipped.
func BuildRequest(prior []model.Message, input, systemPrompt string, params GenerationParams) CompletionRequest {
	msgs := make([]ChatMessage, 0, len(prior)+2)
	if systemPrompt != "" {
		msgs = append(msgs, ChatMessage{Role: model.RoleSystem.String(), Content: systemPrompt})
	}
	for _, m := range prior {
		if m.IsStreaming {
			continue
		}
		msgs = append(msgs, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	msgs = append(msgs, ChatMessage{Role: model.RoleUser.String(), Content: input})

	return CompletionRequest{
		Model:       ResolveModel(params.Model),
		Messages:    msgs,
		Stream:      true,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
}
