// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
)

// MaxAttachmentBytes caps the size of a single text attachment.
const MaxAttachmentBytes = 256 * 1024

// ErrAttachmentTooLarge is returned for attachments over MaxAttachmentBytes.
var ErrAttachmentTooLarge = errors.New("attachment too large")

// Attachment is a text file folded into a user turn.
type Attachment struct {
	Name    string
	Content string
}

// Validate checks the attachment size.
func (a Attachment) Validate() error {
	if len(a.Content) > MaxAttachmentBytes {
		return fmt.Errorf("%s: %w (%d bytes, max %d)", a.Name, ErrAttachmentTooLarge, len(a.Content), MaxAttachmentBytes)
	}
	return nil
}

// ComposeUserContent joins typed text and attachments into the content of a
// single user message. Each attachment becomes a fenced block.
func ComposeUserContent(text string, attachments []Attachment) string {
	text = strings.TrimSpace(text)
	if len(attachments) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for _, a := range attachments {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Attached file: %s\n```\n%s\n```", a.Name, strings.TrimRight(a.Content, "\n"))
	}
	return b.String()
}
