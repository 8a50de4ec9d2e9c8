// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// REACTIONS
// =============================================================================

// ReactionSymbols is the fixed palette offered for message reactions.
var ReactionSymbols = []string{"👍", "❤️", "⭐", "🚀", "🧠", "😊"}

// IsReactionSymbol reports whether s is in ReactionSymbols.
func IsReactionSymbol(s string) bool {
	for _, sym := range ReactionSymbols {
		if sym == s {
			return true
		}
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single turn in a session transcript.
//
// The JSON shape is the persisted format. IsStreaming is only ever true for
// the in-flight assistant placeholder.
type Message struct {
	ID          string         `json:"id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	IsStreaming bool           `json:"isStreaming,omitempty"`
	Reactions   map[string]int `json:"reactions,omitempty"`
	Bookmarked  bool           `json:"bookmarked,omitempty"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage creates a finalized message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: Now(),
	}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewPlaceholder creates an empty streaming assistant message.
func NewPlaceholder() Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsStreaming = true
	return msg
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		m.Reactions = maps.Clone(m.Reactions)
	}
	return m
}

// Preview returns the content collapsed to one line and cut to maxRunes.
func (m Message) Preview(maxRunes int) string {
	return util.TruncateRunes(util.OneLine(m.Content), maxRunes)
}

// ReactionCount returns the total number of reactions on the message.
func (m Message) ReactionCount() int {
	total := 0
	for _, n := range m.Reactions {
		total += n
	}
	return total
}

// CloneMessages deep-copies a transcript.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Now returns the current UTC time without a monotonic reading, so values
// compare equal after a persistence round trip.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}
