// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// EVENTS
// =============================================================================

// Event is a transcript transition applied by Reconcile.
type Event interface {
	isEvent()
}

// AppendPlaceholder adds a streaming assistant message to the end of the
// transcript. Ignored while another message is still streaming.
type AppendPlaceholder struct {
	Message Message
}

// UpdateStreamingContent replaces the content of a streaming message with
// the full accumulated text, not a delta.
type UpdateStreamingContent struct {
	ID      string
	Content string
}

// Finalize sets the final content of a streaming message and clears its
// streaming flag.
type Finalize struct {
	ID      string
	Content string
}

// RemoveMessage drops a message from the transcript.
type RemoveMessage struct {
	ID string
}

// AddReaction increments the counter for Symbol on a message.
type AddReaction struct {
	ID     string
	Symbol string
}

// ToggleBookmark flips the bookmark flag on a message.
type ToggleBookmark struct {
	ID string
}

func (AppendPlaceholder) isEvent()      {}
func (UpdateStreamingContent) isEvent() {}
func (Finalize) isEvent()               {}
func (RemoveMessage) isEvent()          {}
func (AddReaction) isEvent()            {}
func (ToggleBookmark) isEvent()         {}

// =============================================================================
// RECONCILE
// =============================================================================

// Reconcile returns the transcript that results from applying ev to msgs.
// msgs is never modified. Targets are found by id anywhere in the list;
// an unknown id leaves the transcript unchanged.
func Reconcile(msgs []Message, ev Event) []Message {
	out := CloneMessages(msgs)
	if out == nil {
		out = []Message{}
	}

	switch e := ev.(type) {
	case AppendPlaceholder:
		if _, streaming := StreamingMessage(out); streaming {
			return out
		}
		ph := e.Message.Clone()
		ph.Role = RoleAssistant
		ph.IsStreaming = true
		return append(out, ph)

	case UpdateStreamingContent:
		if i := indexOf(out, e.ID); i >= 0 && out[i].IsStreaming {
			out[i].Content = e.Content
		}

	case Finalize:
		if i := indexOf(out, e.ID); i >= 0 && out[i].IsStreaming {
			out[i].Content = e.Content
			out[i].IsStreaming = false
		}

	case RemoveMessage:
		if i := indexOf(out, e.ID); i >= 0 {
			return append(out[:i], out[i+1:]...)
		}

	case AddReaction:
		if i := indexOf(out, e.ID); i >= 0 && e.Symbol != "" {
			if out[i].Reactions == nil {
				out[i].Reactions = make(map[string]int)
			}
			out[i].Reactions[e.Symbol]++
		}

	case ToggleBookmark:
		if i := indexOf(out, e.ID); i >= 0 {
			out[i].Bookmarked = !out[i].Bookmarked
		}
	}

	return out
}

// StreamingMessage returns the streaming message in msgs, if any.
func StreamingMessage(msgs []Message) (Message, bool) {
	for _, m := range msgs {
		if m.IsStreaming {
			return m, true
		}
	}
	return Message{}, false
}

// DropStreaming returns msgs without any streaming placeholders. Used when
// loading a transcript that was persisted mid-stream.
func DropStreaming(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsStreaming {
			out = append(out, m)
		}
	}
	return out
}

func indexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}
