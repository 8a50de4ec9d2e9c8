// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/config"
)

// Renderer turns assistant markdown into terminal output. When disabled,
// content passes through untouched so piped output stays clean.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a Renderer. Markdown is rendered only when enabled is
// true and the glamour renderer can be built.
func NewRenderer(ui config.UIConfig, enabled bool) *Renderer {
	if !enabled || !ui.Markdown {
		return &Renderer{}
	}
	width := ui.WordWrap
	if width <= 0 {
		width = GetTerminalWidth() - 4
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{md: md}
}

// Enabled reports whether markdown is rendered. When it is, replies are
// rendered once finalized instead of streamed fragment by fragment.
func (r *Renderer) Enabled() bool {
	return r != nil && r.md != nil
}

// Render renders content, falling back to the raw text on error.
func (r *Renderer) Render(content string) string {
	if !r.Enabled() {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return out
}
