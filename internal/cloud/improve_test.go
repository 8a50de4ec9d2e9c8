// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImprover_Improve(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "rigchat", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","model":"qwen","choices":[{"index":0,"message":{"role":"assistant","content":"  Explain recursion with a Go example.  "},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	im := NewImprover(NewClient(WithBaseURL(server.URL), WithLogger(quietLogger())))
	got, err := im.Improve(context.Background(), testKey, "recursion?\nuse Go")

	require.NoError(t, err)
	assert.Equal(t, "Explain recursion with a Go example.", got)
	assert.Equal(t, ImproverModel, body["model"])
	assert.Equal(t, float64(500), body["max_tokens"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Please improve this prompt: \"recursion?\nuse Go\"", msgs[1].(map[string]any)["content"])
}

func TestImprover_Errors(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusPaymentRequired, ErrQuota},
		{http.StatusTooManyRequests, ErrTransport},
		{http.StatusBadGateway, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"error","code":"x"}}`)
			}))
			defer server.Close()

			im := NewImprover(NewClient(WithBaseURL(server.URL), WithLogger(quietLogger())))
			_, err := im.Improve(context.Background(), testKey, "prompt")
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestImprover_Guards(t *testing.T) {
	im := NewImprover(NewClient(WithLogger(quietLogger())))

	_, err := im.Improve(context.Background(), testKey, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = im.Improve(context.Background(), "", "prompt")
	assert.ErrorIs(t, err, ErrConfiguration)
}
