// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"io"
	"sync"

	"github.com/jeranaias/rigchat/internal/model"
)

// Notifier is told about finalized replies. It runs in its own goroutine
// and is never awaited.
type Notifier interface {
	Notify(sessionID string, reply model.Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(sessionID string, reply model.Message)

// Notify calls f.
func (f NotifierFunc) Notify(sessionID string, reply model.Message) {
	f(sessionID, reply)
}

// BellNotifier rings the terminal bell.
type BellNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellNotifier creates a BellNotifier writing to w.
func NewBellNotifier(w io.Writer) *BellNotifier {
	return &BellNotifier{w: w}
}

// Notify writes BEL.
func (b *BellNotifier) Notify(string, model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = io.WriteString(b.w, "\a")
}
