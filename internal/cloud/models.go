// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"sort"
	"strings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "anthropic/claude-3.5-sonnet"

// ModelInfo describes a model offered in the picker.
type ModelInfo struct {
	ID       string
	Name     string
	Provider string
}

// Models is the catalog offered by /model. Any other OpenRouter id is
// still accepted as-is.
var Models = []ModelInfo{
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic"},
	{ID: "openai/gpt-4-turbo", Name: "GPT-4 Turbo", Provider: "OpenAI"},
	{ID: "openai/gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: "OpenAI"},
	{ID: "meta-llama/llama-3.1-8b-instruct", Name: "Llama 3.1 8B", Provider: "Meta"},
	{ID: "google/gemini-pro", Name: "Gemini Pro", Provider: "Google"},
	{ID: ImproverModel, Name: "Qwen 2.5 72B", Provider: "Qwen"},
}

// ModelAliases maps short names to full model identifiers.
var ModelAliases = map[string]string{
	"auto":   "openrouter/auto",
	"sonnet": "anthropic/claude-3.5-sonnet",
	"gpt4":   "openai/gpt-4-turbo",
	"gpt35":  "openai/gpt-3.5-turbo",
	"llama":  "meta-llama/llama-3.1-8b-instruct",
	"gemini": "google/gemini-pro",
	"qwen":   ImproverModel,
}

// ResolveModel expands an alias, falling back to DefaultModel when empty.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultModel
	}
	if id, ok := ModelAliases[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// LookupModel returns catalog info for an id or alias.
func LookupModel(name string) (ModelInfo, bool) {
	id := ResolveModel(name)
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// AliasNames returns the alias keys in sorted order.
func AliasNames() []string {
	names := make([]string, 0, len(ModelAliases))
	for k := range ModelAliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
