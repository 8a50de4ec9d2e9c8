// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, exit codes and user-facing error text.
//
// Handlers always return errors; Run decides how to display them and which
// exit code to use.

package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the API key was rejected
	ExitAuthError = 4
	// ExitNetworkError indicates a transport failure or non-2xx response
	ExitNetworkError = 5
	// ExitQuotaError indicates insufficient credits or rate limiting
	ExitQuotaError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitCancelled indicates the user aborted the request
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string // e.g. "session", "message"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is lets errors.Is(err, session.ErrNotFound) match a missing session.
func (e *NotFoundError) Is(target error) bool {
	return target == session.ErrNotFound && e.Resource == "session"
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "required argument missing",
		Example: usage,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErrs config.ValidateErrors
	var notFoundErr *NotFoundError
	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, cloud.ErrEmptyInput),
		errors.Is(err, model.ErrAttachmentTooLarge):
		return ExitUsageError
	case errors.As(err, &notFoundErr), errors.Is(err, session.ErrNotFound):
		return ExitNotFoundError
	case errors.As(err, &configErrs), errors.Is(err, cloud.ErrConfiguration):
		return ExitConfigError
	case errors.Is(err, cloud.ErrAuthentication):
		return ExitAuthError
	case errors.Is(err, cloud.ErrQuota), errors.Is(err, cloud.ErrRateLimited):
		return ExitQuotaError
	case errors.Is(err, cloud.ErrCancelled):
		return ExitCancelled
	case errors.Is(err, cloud.ErrTransport):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// =============================================================================
// USER-FACING TEXT
// =============================================================================

// FriendlyError returns a one-line explanation of err with a hint on what to
// do next.
func FriendlyError(err error) string {
	var cerr *cloud.Error
	switch {
	case errors.Is(err, cloud.ErrConfiguration):
		return "No OpenRouter API key is set. Run: rigchat config set cloud.openrouter_key <key> (or export RIGCHAT_OPENROUTER_KEY)"
	case errors.Is(err, cloud.ErrAuthentication):
		return "OpenRouter rejected the API key. Check cloud.openrouter_key."
	case errors.Is(err, cloud.ErrQuota):
		return "Insufficient OpenRouter credits. Add credits at https://openrouter.ai/credits"
	case errors.As(err, &cerr) && cerr.Kind == cloud.KindRateLimit:
		if cerr.RetryAfter > 0 {
			return fmt.Sprintf("Rate limited by OpenRouter. Retry in %s.", cerr.RetryAfter.Round(time.Second))
		}
		return "Rate limited by OpenRouter. Wait a moment and retry."
	case errors.Is(err, cloud.ErrCancelled):
		return "Cancelled."
	case errors.Is(err, cloud.ErrEmptyInput):
		return "Nothing to send. Type a message or /attach a file."
	case errors.As(err, &cerr):
		return "Request failed: " + cerr.Error()
	}
	return err.Error()
}

// DisplayError writes err in the standard format. In JSON mode a JSON error
// response is written instead.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return
	}
	style := ErrorStyle
	label := "[Error]"
	if errors.Is(err, cloud.ErrCancelled) {
		style, label = WarningStyle, "[Cancelled]"
	}
	fmt.Fprintf(w, "%s %s\n", style.Render(label), FriendlyError(err))
}

// errorKindName names the error category for JSON output.
func errorKindName(err error) string {
	var cerr *cloud.Error
	if errors.As(err, &cerr) {
		return cerr.Kind.String()
	}
	switch GetExitCode(err) {
	case ExitUsageError:
		return "usage"
	case ExitNotFoundError:
		return "not_found"
	case ExitConfigError:
		return "configuration"
	}
	return ""
}
