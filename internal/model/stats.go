// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"math"
	"time"
)

// Stats summarizes all sessions plus the active one.
type Stats struct {
	TotalSessions int           `json:"totalSessions"`
	TotalMessages int           `json:"totalMessages"`
	AvgPerSession int           `json:"avgPerSession"`
	Bookmarks     int           `json:"bookmarks"`
	Reactions     int           `json:"reactions"`
	Current       *SessionStats `json:"current,omitempty"`
}

// SessionStats describes a single session.
type SessionStats struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Messages          int           `json:"messages"`
	UserMessages      int           `json:"userMessages"`
	AssistantMessages int           `json:"assistantMessages"`
	Duration          time.Duration `json:"duration"`
}

// ComputeStats builds Stats from sessions. active may be nil.
func ComputeStats(sessions []*Session, active *Session) Stats {
	var st Stats
	st.TotalSessions = len(sessions)
	for _, s := range sessions {
		st.TotalMessages += len(s.Messages)
		for _, m := range s.Messages {
			if m.Bookmarked {
				st.Bookmarks++
			}
			st.Reactions += m.ReactionCount()
		}
	}
	if st.TotalSessions > 0 {
		st.AvgPerSession = int(math.Round(float64(st.TotalMessages) / float64(st.TotalSessions)))
	}
	if active != nil {
		st.Current = &SessionStats{
			ID:                active.ID,
			Title:             active.Title,
			Messages:          len(active.Messages),
			UserMessages:      active.Count(RoleUser),
			AssistantMessages: active.Count(RoleAssistant),
			Duration:          active.Duration(),
		}
	}
	return st
}
