// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

func sampleSession() *model.Session {
	s := model.NewSession()
	user := model.NewUserMessage("hi")
	reply := model.NewMessage(model.RoleAssistant, "hello")
	reply.Reactions = map[string]int{"👍": 2}
	reply.Bookmarked = true
	s.SetMessages([]model.Message{user, reply})
	return s
}

func TestCodec_RoundTrip(t *testing.T) {
	s := sampleSession()
	in := map[string]*model.Session{s.ID: s}

	data, err := EncodeSessions(in)
	if err != nil {
		t.Fatalf("EncodeSessions: %v", err)
	}
	out, err := DecodeSessions(data)
	if err != nil {
		t.Fatalf("DecodeSessions: %v", err)
	}

	got := out[s.ID]
	if got == nil {
		t.Fatalf("session %s missing after round trip", s.ID)
	}
	if !reflect.DeepEqual(s, got) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, s)
	}
}

func TestCodec_WireFormat(t *testing.T) {
	s := sampleSession()
	data, err := EncodeSessions(map[string]*model.Session{s.ID: s})
	if err != nil {
		t.Fatalf("EncodeSessions: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	entry := raw[s.ID]
	for _, field := range []string{"id", "title", "messages", "createdAt", "updatedAt"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
	if _, err := time.Parse(time.RFC3339Nano, entry["createdAt"].(string)); err != nil {
		t.Errorf("createdAt is not RFC 3339: %v", err)
	}

	msgs := entry["messages"].([]any)
	first := msgs[0].(map[string]any)
	if _, ok := first["isStreaming"]; ok {
		t.Error("isStreaming=false should be omitted")
	}
	second := msgs[1].(map[string]any)
	if second["bookmarked"] != true {
		t.Errorf("bookmarked = %v, want true", second["bookmarked"])
	}
}

func TestCodec_DropsStreamingPlaceholders(t *testing.T) {
	s := sampleSession()
	s.Messages = model.Reconcile(s.Messages, model.AppendPlaceholder{Message: model.NewPlaceholder()})

	data, _ := EncodeSessions(map[string]*model.Session{s.ID: s})
	out, err := DecodeSessions(data)
	if err != nil {
		t.Fatalf("DecodeSessions: %v", err)
	}
	msgs := out[s.ID].Messages
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.IsStreaming {
			t.Error("streaming message survived load")
		}
	}
}

func TestCodec_CorruptData(t *testing.T) {
	good := sampleSession()
	goodJSON, _ := json.Marshal(good)

	tests := map[string]string{
		"not json":        `{"a":`,
		"wrong shape":     `[1,2,3]`,
		"bad timestamp":   `{"x":{"id":"x","title":"t","messages":[],"createdAt":"yesterday","updatedAt":"2025-01-01T00:00:00Z"}}`,
		"id mismatch":     `{"x":{"id":"y","title":"t","messages":[],"createdAt":"2025-01-01T00:00:00Z","updatedAt":"2025-01-01T00:00:00Z"}}`,
		"null session":    `{"x":null}`,
		"one bad of many": `{"` + good.ID + `":` + string(goodJSON) + `,"x":{"id":"x","messages":[{"role":"user"}],"createdAt":"2025-01-01T00:00:00Z"}}`,
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := DecodeSessions([]byte(blob))
			if !errors.Is(err, ErrCorruptData) {
				t.Fatalf("err = %v, want ErrCorruptData", err)
			}
			if out != nil {
				t.Errorf("partial result returned: %v", out)
			}
		})
	}
}

func TestCodec_Empty(t *testing.T) {
	out, err := DecodeSessions([]byte("  "))
	if err != nil || len(out) != 0 {
		t.Errorf("DecodeSessions(blank) = %v, %v", out, err)
	}
}

func TestCodec_FillsMissingTitle(t *testing.T) {
	blob := `{"x":{"id":"x","messages":[{"id":"m","role":"user","content":"` + strings.Repeat("z", 60) + `","timestamp":"2025-01-01T00:00:00Z"}],"createdAt":"2025-01-01T00:00:00Z","updatedAt":"2025-01-01T00:00:00Z"}}`
	out, err := DecodeSessions([]byte(blob))
	if err != nil {
		t.Fatalf("DecodeSessions: %v", err)
	}
	if want := strings.Repeat("z", 50) + "..."; out["x"].Title != want {
		t.Errorf("Title = %q, want %q", out["x"].Title, want)
	}
}
