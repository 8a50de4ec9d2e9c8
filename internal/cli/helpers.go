// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Formatting and lookup helpers shared by the commands.

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
)

// formatAge formats the time since t, e.g. "5m ago".
func formatAge(t time.Time) string {
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	return formatDuration(d) + " ago"
}

// formatDuration formats a time.Duration coarsely for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

// formatNumber formats n with thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	result := make([]byte, 0, len(s)+len(s)/3)
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, s[i])
	}
	return string(result)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// readAttachment reads a text file for folding into a user turn.
// Binary files and files over model.MaxAttachmentBytes are rejected.
func readAttachment(path string) (model.Attachment, error) {
	path = config.ExpandHome(strings.TrimSpace(path))
	if path == "" {
		return model.Attachment{}, ErrMissingArgument("path", "/attach notes.txt")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Attachment{}, ErrNotFound("file", path)
		}
		return model.Attachment{}, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return model.Attachment{}, NewValidationError("path", path, "is a directory")
	}
	if info.Size() > model.MaxAttachmentBytes {
		return model.Attachment{}, fmt.Errorf("%s: %w (%d bytes, max %d)",
			filepath.Base(path), model.ErrAttachmentTooLarge, info.Size(), model.MaxAttachmentBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return model.Attachment{}, NewValidationError("file", filepath.Base(path), "not a text file")
	}

	att := model.Attachment{Name: filepath.Base(path), Content: string(data)}
	return att, att.Validate()
}

// =============================================================================
// SESSION REFERENCES
// =============================================================================

// resolveSessionRef turns a user reference into a session id. ref may be a
// number from the last listing (1-based), a full id, or a unique id prefix.
func resolveSessionRef(store *session.Store, ref string, listing []string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrMissingArgument("session", "/switch 2")
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if listing == nil {
			for _, s := range store.List("") {
				listing = append(listing, s.ID)
			}
		}
		if n < 1 || n > len(listing) {
			return "", NewValidationError("session number", ref, fmt.Sprintf("must be between 1 and %d", len(listing)))
		}
		return listing[n-1], nil
	}

	if _, err := store.Get(ref); err == nil {
		return ref, nil
	}

	var matches []string
	for _, s := range store.List("") {
		if strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", ErrNotFound("session", ref)
	case 1:
		return matches[0], nil
	default:
		return "", NewValidationError("session", ref, fmt.Sprintf("prefix matches %d sessions", len(matches)))
	}
}

// resolveMessageRef returns the message at a 1-based position in sess.
func resolveMessageRef(sess *model.Session, ref string) (model.Message, error) {
	n, err := ParseIntWithValidation(ref, "message number")
	if err != nil {
		return model.Message{}, err
	}
	if n > len(sess.Messages) {
		return model.Message{}, ErrNotFound("message", ref)
	}
	return sess.Messages[n-1], nil
}

// shortID returns the first eight characters of an id.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// unescapeNewlines turns literal "\n" sequences back into newlines. Used for
// prefilled template drafts, which have to fit on one input line.
func unescapeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

// escapeNewlines is the inverse of unescapeNewlines.
func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
