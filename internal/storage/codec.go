// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jeranaias/rigchat/internal/model"
)

// EncodeSessions serializes sessions as a JSON object keyed by session id.
// Timestamps use RFC 3339 with nanoseconds.
func EncodeSessions(sessions map[string]*model.Session) ([]byte, error) {
	out := make(map[string]*model.Session, len(sessions))
	for id, s := range sessions {
		if s == nil {
			continue
		}
		out[id] = s
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}
	return data, nil
}

// DecodeSessions parses a blob written by EncodeSessions. Any problem with
// any session fails the whole decode with ErrCorruptData; a partial result
// is never returned. Streaming placeholders left by an interrupted send are
// dropped.
func DecodeSessions(data []byte) (map[string]*model.Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]*model.Session{}, nil
	}

	var raw map[string]*model.Session
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	sessions := make(map[string]*model.Session, len(raw))
	for key, s := range raw {
		if err := validateSession(key, s); err != nil {
			return nil, fmt.Errorf("%w: session %q: %v", ErrCorruptData, key, err)
		}
		s.Messages = model.DropStreaming(s.Messages)
		if s.Title == "" {
			s.Title = model.DeriveTitle(s.Messages)
		}
		sessions[key] = s
	}
	return sessions, nil
}

func validateSession(key string, s *model.Session) error {
	switch {
	case s == nil:
		return fmt.Errorf("null session")
	case s.ID == "":
		return fmt.Errorf("missing id")
	case s.ID != key:
		return fmt.Errorf("id %q does not match key", s.ID)
	case s.CreatedAt.IsZero():
		return fmt.Errorf("missing createdAt")
	}
	seen := make(map[string]bool, len(s.Messages))
	for i, m := range s.Messages {
		if m.ID == "" {
			return fmt.Errorf("message %d: missing id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("message %d: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant && m.Role != model.RoleSystem {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}
