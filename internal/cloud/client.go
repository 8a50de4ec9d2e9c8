// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultBaseURL is the base URL for the OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultHeaderTimeout bounds the wait for response headers. The body
	// of a stream is bounded only by the caller's context.
	DefaultHeaderTimeout = 60 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 * 1024

	userAgent = "rigchat/1.0"
)

// newHTTPClient returns a pooled client suitable for long-lived streams.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

// StreamStats describes one completed stream.
type StreamStats struct {
	Fragments int
	Noise     int
	Sentinel  bool // stream ended with [DONE] rather than EOF
	TTFT      time.Duration
	Duration  time.Duration
}

// Client sends streaming chat completions to OpenRouter.
// It holds no credential; the token is supplied per call.
type Client struct {
	baseURL    string
	siteURL    string
	siteName   string
	httpClient *http.Client
	noiseHook  NoiseHook
	log        logrus.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSite sets the HTTP-Referer and X-Title attribution headers.
func WithSite(siteURL, siteName string) ClientOption {
	return func(c *Client) {
		c.siteURL = siteURL
		c.siteName = siteName
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeaderTimeout sets how long to wait for response headers.
func WithHeaderTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = newHTTPClient(d)
		}
	}
}

// WithNoiseHook registers a hook for dropped stream lines.
func WithNoiseHook(h NoiseHook) ClientOption {
	return func(c *Client) { c.noiseHook = h }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		siteName:   "rigchat",
		httpClient: newHTTPClient(DefaultHeaderTimeout),
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream POSTs req and calls onFragment for every decoded content fragment
// until the stream ends. Every failure is returned as an *Error.
func (c *Client) Stream(ctx context.Context, token string, req CompletionRequest, onFragment func(string)) (*StreamStats, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewError(KindConfiguration, "OpenRouter API key not set", nil)
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewError(KindTransport, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindTransport, "create request", err)
	}
	c.setHeaders(httpReq, token)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	log := c.log.WithFields(logrus.Fields{
		"model":    req.Model,
		"messages": len(req.Messages),
		"key":      KeyFingerprint(token),
	})
	log.Debug("sending completion request")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := FromStatus(resp.StatusCode, resp.Header, errBody)
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "kind": apiErr.Kind}).Warn("completion request rejected")
		return nil, apiErr
	}

	stats := &StreamStats{}
	dec := NewDecoder(c.noiseHook)
	err = dec.Decode(ctx, resp.Body, func(fragment string) {
		if stats.Fragments == 0 {
			stats.TTFT = time.Since(start)
		}
		stats.Fragments++
		onFragment(fragment)
	})
	stats.Noise = dec.Noise()
	stats.Sentinel = dec.Done()
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, Classify(ctx, fmt.Errorf("read stream: %w", err))
	}

	log.WithFields(logrus.Fields{
		"fragments": stats.Fragments,
		"noise":     stats.Noise,
		"duration":  stats.Duration,
	}).Debug("stream complete")
	return stats, nil
}

// setHeaders sets auth, content and attribution headers.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// KeyFingerprint identifies a key in logs without exposing any of it.
func KeyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}
