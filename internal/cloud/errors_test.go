// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesOnlyItsKind(t *testing.T) {
	err := fmt.Errorf("send: %w", &Error{Kind: KindQuota, Status: 402})

	assert.ErrorIs(t, err, ErrQuota)
	assert.NotErrorIs(t, err, ErrAuthentication)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestErrorMessage(t *testing.T) {
	e := &Error{Kind: KindRateLimit, Status: 429, Message: "slow down", RetryAfter: 3 * time.Second}
	assert.Equal(t, "rate limited (HTTP 429): slow down (retry after 3s)", e.Error())

	e = NewError(KindTransport, "", errors.New("dial tcp: refused"))
	assert.Equal(t, "transport failure: dial tcp: refused", e.Error())
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(context.Background(), nil))
	assert.Equal(t, KindCancelled, Classify(context.Background(), context.Canceled).Kind)
	assert.Equal(t, KindTransport, Classify(context.Background(), context.DeadlineExceeded).Kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, KindCancelled, Classify(ctx, errors.New("read: use of closed connection")).Kind)

	orig := &Error{Kind: KindQuota}
	assert.Same(t, orig, Classify(context.Background(), fmt.Errorf("wrap: %w", orig)))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	h := http.Header{}
	assert.Zero(t, parseRetryAfter(h, now))

	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, parseRetryAfter(h, now))

	h.Set("Retry-After", now.Add(30*time.Second).Format(http.TimeFormat))
	assert.Equal(t, 30*time.Second, parseRetryAfter(h, now))

	h.Set("Retry-After", "soon")
	assert.Zero(t, parseRetryAfter(h, now))
}

func TestFromStatus_ParsesProviderCode(t *testing.T) {
	e := FromStatus(401, nil, []byte(`{"error":{"code":"invalid_key","message":"bad key"}}`))
	assert.Equal(t, KindAuthentication, e.Kind)
	assert.Equal(t, "invalid_key", e.Code)
	assert.Equal(t, "bad key", e.Message)
}
