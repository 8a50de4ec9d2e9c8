// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/util"
)

const (
	// DefaultTitle is used until a session has a user message.
	DefaultTitle = "New Chat"

	// TitleMaxRunes bounds a derived title before the ellipsis.
	TitleMaxRunes = 50
)

// Session is one conversation thread. It exclusively owns its transcript.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates an empty session titled DefaultTitle.
func NewSession() *Session {
	t := Now()
	return &Session{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// DeriveTitle returns the title implied by a transcript: the first user
// message cut to TitleMaxRunes plus an ellipsis, or DefaultTitle.
func DeriveTitle(msgs []Message) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		text := util.OneLine(m.Content)
		if text == "" {
			continue
		}
		return util.Ellipsize(text, TitleMaxRunes)
	}
	return DefaultTitle
}

// HasTitleContent reports whether the transcript contains a user message a
// title could be derived from.
func HasTitleContent(msgs []Message) bool {
	return DeriveTitle(msgs) != DefaultTitle
}

// SetMessages replaces the transcript, recomputes the title if the session
// did not yet have title-worthy content, and bumps UpdatedAt.
func (s *Session) SetMessages(msgs []Message) {
	hadTitle := HasTitleContent(s.Messages) || (s.Title != "" && s.Title != DefaultTitle)
	s.Messages = msgs
	if !hadTitle {
		s.Title = DeriveTitle(msgs)
	}
	s.Touch(Now())
}

// Touch advances UpdatedAt to t. If the wall clock has not moved past the
// current value (or went backwards) UpdatedAt is nudged forward instead.
func (s *Session) Touch(t time.Time) {
	if !t.After(s.UpdatedAt) {
		t = s.UpdatedAt.Add(time.Nanosecond)
	}
	s.UpdatedAt = t
}

// Message returns the message with the given id.
func (s *Session) Message(id string) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Streaming returns the in-flight placeholder, if any.
func (s *Session) Streaming() (Message, bool) {
	return StreamingMessage(s.Messages)
}

// Count returns the number of messages with the given role.
func (s *Session) Count(role Role) int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Duration is the span between creation and the last update.
func (s *Session) Duration() time.Duration {
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// MatchesFilter reports whether the title contains filter, ignoring case.
func (s *Session) MatchesFilter(filter string) bool {
	return util.ContainsFold(s.Title, strings.TrimSpace(filter))
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = CloneMessages(s.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c
}
