// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"strings"
	"sync"
)

// CredentialProvider supplies the bearer token for a send. ready is false
// when no usable token is configured.
type CredentialProvider interface {
	Credential(ctx context.Context) (token string, ready bool)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, bool)

// Credential calls f.
func (f CredentialFunc) Credential(ctx context.Context) (string, bool) {
	return f(ctx)
}

// StaticCredential is a fixed token. An empty token is never ready.
type StaticCredential string

// Credential returns the token.
func (s StaticCredential) Credential(context.Context) (string, bool) {
	token := strings.TrimSpace(string(s))
	return token, token != ""
}

// MutableCredential is a token that can be replaced at runtime, e.g. by a
// /key command.
type MutableCredential struct {
	mu    sync.RWMutex
	token string
}

// NewMutableCredential creates a MutableCredential holding token.
func NewMutableCredential(token string) *MutableCredential {
	return &MutableCredential{token: strings.TrimSpace(token)}
}

// Set replaces the token.
func (m *MutableCredential) Set(token string) {
	m.mu.Lock()
	m.token = strings.TrimSpace(token)
	m.mu.Unlock()
}

// Credential returns the current token.
func (m *MutableCredential) Credential(context.Context) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}
