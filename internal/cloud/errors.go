// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// ErrorKind classifies a failed completion for the caller.
type ErrorKind int

const (
	// KindTransport covers network failures, 5xx and any other non-2xx status.
	KindTransport ErrorKind = iota
	// KindConfiguration means no credential was available. No request was sent.
	KindConfiguration
	// KindAuthentication is HTTP 401.
	KindAuthentication
	// KindQuota is HTTP 402 (insufficient credits).
	KindQuota
	// KindRateLimit is HTTP 429.
	KindRateLimit
	// KindCancelled is a caller-initiated abort.
	KindCancelled
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindQuota:
		return "quota"
	case KindRateLimit:
		return "rate_limit"
	case KindCancelled:
		return "cancelled"
	default:
		return "transport"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfiguration  = errors.New("no credential configured")
	ErrAuthentication = errors.New("authentication failed")
	ErrQuota          = errors.New("insufficient credits")
	ErrRateLimited    = errors.New("rate limited")
	ErrTransport      = errors.New("transport failure")
	ErrCancelled      = errors.New("request cancelled")

	// ErrEmptyInput is returned when there is nothing to send.
	ErrEmptyInput = errors.New("empty input")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindAuthentication:
		return ErrAuthentication
	case KindQuota:
		return ErrQuota
	case KindRateLimit:
		return ErrRateLimited
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrTransport
	}
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is the typed failure returned by the client and the engine.
type Error struct {
	Kind       ErrorKind
	Status     int           // HTTP status, 0 when no response was received
	Code       string        // provider error code, if any
	Message    string        // provider or local message
	RetryAfter time.Duration // only for KindRateLimit
	Err        error         // underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.sentinel().Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %v)", e.RetryAfter)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// NewError builds an *Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of err. Context cancellation maps to KindCancelled
// and anything unrecognised to KindTransport.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTransport
}

// Classify wraps err as an *Error. An existing *Error is returned as is.
// ctx decides whether a failure was caused by cancellation.
func Classify(ctx context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || (ctx != nil && errors.Is(ctx.Err(), context.Canceled)) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

// apiErrorResponse is the error body OpenRouter returns on non-2xx.
type apiErrorResponse struct {
	Error struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// FromStatus maps a non-2xx response to an *Error. body may be empty.
func FromStatus(status int, header http.Header, body []byte) *Error {
	e := &Error{Status: status}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		e.Message = apiErr.Error.Message
		e.Code = strings.Trim(string(apiErr.Error.Code), `"`)
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		e.Message = text
	}

	switch status {
	case http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case http.StatusPaymentRequired:
		e.Kind = KindQuota
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimit
		e.RetryAfter = parseRetryAfter(header, time.Now())
	default:
		e.Kind = KindTransport
	}
	return e
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date.
func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
