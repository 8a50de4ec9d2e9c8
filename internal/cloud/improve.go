// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Prompt improver settings.
const (
	ImproverModel       = "qwen/qwen-2.5-72b-instruct"
	improverTemperature = 0.7
	improverMaxTokens   = 500
	improverTimeout     = 60 * time.Second
)

const improverSystemPrompt = `You are an expert prompt engineer. Your task is to improve user prompts to be more clear, specific, and effective for AI assistance.

Guidelines for improvement:
- Make the prompt more specific and actionable
- Add context where helpful
- Structure the request clearly
- Maintain the original intent
- Keep it concise but comprehensive
- Add examples if helpful

Return only the improved prompt, nothing else.`

// Improver rewrites a draft prompt with a single non-streaming completion.
type Improver struct {
	baseURL   string
	transport http.RoundTripper
	model     string
	log       logrus.FieldLogger
}

// NewImprover creates an Improver that talks to the same endpoint, with the
// same attribution headers, as c.
func NewImprover(c *Client) *Improver {
	return &Improver{
		baseURL: c.baseURL,
		transport: &attributionTransport{
			base:     c.httpClient.Transport,
			siteURL:  c.siteURL,
			siteName: c.siteName,
		},
		model: ImproverModel,
		log:   c.log,
	}
}

// Improve returns the improved prompt. Errors are *Error values except for
// ErrEmptyInput.
func (im *Improver) Improve(ctx context.Context, token, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyInput
	}
	if strings.TrimSpace(token) == "" {
		return "", NewError(KindConfiguration, "OpenRouter API key not set", nil)
	}

	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = im.baseURL
	cfg.HTTPClient = &http.Client{Transport: im.transport, Timeout: improverTimeout}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: im.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: improverSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Please improve this prompt: \"" + prompt + "\""},
		},
		Temperature: improverTemperature,
		MaxTokens:   improverMaxTokens,
	})
	if err != nil {
		e := classifyOpenAI(ctx, err)
		im.log.WithFields(logrus.Fields{"kind": e.Kind, "status": e.Status}).Warn("prompt improvement failed")
		return "", e
	}

	if len(resp.Choices) == 0 {
		return "", NewError(KindTransport, "no choices in response", nil)
	}
	improved := strings.TrimSpace(resp.Choices[0].Message.Content)
	if improved == "" {
		return "", NewError(KindTransport, "empty improvement", nil)
	}
	return improved, nil
}

// classifyOpenAI maps go-openai errors onto the same taxonomy as streams.
// Only 401 and 402 are distinguished; everything else is a transport error.
func classifyOpenAI(ctx context.Context, err error) *Error {
	status := 0
	msg := ""
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return Classify(ctx, err)
	}

	e := &Error{Status: status, Message: msg, Err: err}
	switch status {
	case http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case http.StatusPaymentRequired:
		e.Kind = KindQuota
	default:
		e.Kind = KindTransport
	}
	return e
}

// attributionTransport adds the OpenRouter attribution headers.
type attributionTransport struct {
	base     http.RoundTripper
	siteURL  string
	siteName string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if t.siteURL != "" {
		req.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		req.Header.Set("X-Title", t.siteName)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
