// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

var (
	// ErrNotFound is returned for an unknown session or message id.
	ErrNotFound = errors.New("session not found")

	// ErrNoActiveSession is returned by AppendToActive when nothing is active.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidReaction is returned for a symbol outside model.ReactionSymbols.
	ErrInvalidReaction = errors.New("invalid reaction")
)

// Bookmark is a bookmarked message with its session.
type Bookmark struct {
	SessionID    string
	SessionTitle string
	Message      model.Message
}

// Store holds all sessions and the active session id.
type Store struct {
	backend storage.Backend
	key     string
	log     logrus.FieldLogger

	mu       sync.RWMutex
	sessions map[string]*model.Session
	activeID string

	// writeMu is held by every mutation from the memory change through the
	// write, and by Reload. It is always taken before mu.
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// Open creates a Store and loads persisted sessions. When the stored data
// is corrupt the returned Store is empty and usable, and the error wraps
// storage.ErrCorruptData. Any other load error returns a nil Store.
func Open(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:  backend,
		key:      storage.SessionsKey,
		log:      logrus.StandardLogger(),
		sessions: make(map[string]*model.Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := s.load(ctx)
	if errors.Is(err, storage.ErrCorruptData) {
		s.log.WithError(err).Warn("stored sessions are corrupt, starting empty")
		return s, err
	}
	if err != nil {
		return nil, err
	}
	s.sessions = loaded
	s.log.WithField("sessions", len(loaded)).Debug("sessions loaded")
	return s, nil
}

func (s *Store) load(ctx context.Context) (map[string]*model.Session, error) {
	blob, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return make(map[string]*model.Session), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return storage.DecodeSessions(blob)
}

// persist writes every session. Callers hold writeMu and not mu.
func (s *Store) persist(ctx context.Context) error {
	s.mu.RLock()
	blob, err := storage.EncodeSessions(s.sessions)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, s.key, blob); err != nil {
		s.log.WithError(err).Error("failed to persist sessions")
		return fmt.Errorf("persist sessions: %w", err)
	}
	return nil
}

// mutate runs fn on the session with the given id under the lock, then
// persists if requested.
func (s *Store) mutate(ctx context.Context, id string, persist bool, fn func(*model.Session) error) (*model.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := fn(sess); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	out := sess.Clone()
	s.mu.Unlock()

	if persist {
		if err := s.persist(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// Create adds an empty session titled model.DefaultTitle and makes it active.
// CreatedAt is strictly later than that of every existing session.
func (s *Store) Create(ctx context.Context) (*model.Session, error) {
	sess := model.NewSession()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	for _, other := range s.sessions {
		if !sess.CreatedAt.After(other.CreatedAt) {
			sess.CreatedAt = other.CreatedAt.Add(time.Nanosecond)
		}
	}
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = sess
	s.activeID = sess.ID
	out := sess.Clone()
	s.mu.Unlock()

	s.log.WithField("session", sess.ID).Debug("session created")
	return out, s.persist(ctx)
}

// List returns copies of the sessions whose title contains filter (case
// insensitive), most recently created first.
func (s *Store) List(filter string) []*model.Session {
	s.mu.RLock()
	out := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.MatchesFilter(filter) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Select makes id the active session and returns it.
func (s *Store) Select(id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.activeID = id
	return sess.Clone(), nil
}

// Delete removes a session, clearing the active pointer if it was active.
// Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.sessions, id)
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()

	s.log.WithField("session", id).Debug("session deleted")
	return s.persist(ctx)
}

// AppendToActive replaces the active session's transcript with msgs,
// derives the title if the session had none, and bumps UpdatedAt.
func (s *Store) AppendToActive(ctx context.Context, msgs []model.Message) (*model.Session, error) {
	id := s.ActiveID()
	if id == "" {
		return nil, ErrNoActiveSession
	}
	return s.Replace(ctx, id, msgs)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Get returns a copy of the session.
func (s *Store) Get(id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.Clone(), nil
}

// ActiveID returns the active session id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active session.
func (s *Store) Active() (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[s.activeID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// EnsureActive returns the active session, creating one if none is active.
func (s *Store) EnsureActive(ctx context.Context) (*model.Session, error) {
	if sess, ok := s.Active(); ok {
		return sess, nil
	}
	return s.Create(ctx)
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// =============================================================================
// TRANSCRIPT MUTATIONS
// =============================================================================

// Apply reconciles ev into the session's transcript. With persist false
// only memory changes; this is how streaming increments are applied.
func (s *Store) Apply(ctx context.Context, id string, ev model.Event, persist bool) (*model.Session, error) {
	return s.mutate(ctx, id, persist, func(sess *model.Session) error {
		sess.Messages = model.Reconcile(sess.Messages, ev)
		if _, isUpdate := ev.(model.UpdateStreamingContent); !isUpdate {
			sess.Touch(model.Now())
		}
		return nil
	})
}

// Append adds messages to the end of the session's transcript.
func (s *Store) Append(ctx context.Context, id string, msgs ...model.Message) (*model.Session, error) {
	return s.mutate(ctx, id, true, func(sess *model.Session) error {
		next := model.CloneMessages(sess.Messages)
		next = append(next, model.CloneMessages(msgs)...)
		sess.SetMessages(next)
		return nil
	})
}

// Replace sets the session's transcript. See model.Session.SetMessages.
func (s *Store) Replace(ctx context.Context, id string, msgs []model.Message) (*model.Session, error) {
	return s.mutate(ctx, id, true, func(sess *model.Session) error {
		next := model.CloneMessages(msgs)
		if next == nil {
			next = []model.Message{}
		}
		sess.SetMessages(next)
		return nil
	})
}

// Rename sets a manual title. An empty title restores the derived one.
func (s *Store) Rename(ctx context.Context, id, title string) (*model.Session, error) {
	title = strings.TrimSpace(title)
	return s.mutate(ctx, id, true, func(sess *model.Session) error {
		if title == "" {
			title = model.DeriveTitle(sess.Messages)
		}
		sess.Title = title
		sess.Touch(model.Now())
		return nil
	})
}

// React adds a reaction to a message.
func (s *Store) React(ctx context.Context, id, msgID, symbol string) (*model.Session, error) {
	if !model.IsReactionSymbol(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReaction, symbol)
	}
	return s.mutate(ctx, id, true, func(sess *model.Session) error {
		if _, ok := sess.Message(msgID); !ok {
			return fmt.Errorf("%w: message %s", ErrNotFound, msgID)
		}
		sess.Messages = model.Reconcile(sess.Messages, model.AddReaction{ID: msgID, Symbol: symbol})
		return nil
	})
}

// ToggleBookmark flips the bookmark flag on a message.
func (s *Store) ToggleBookmark(ctx context.Context, id, msgID string) (*model.Session, error) {
	return s.mutate(ctx, id, true, func(sess *model.Session) error {
		if _, ok := sess.Message(msgID); !ok {
			return fmt.Errorf("%w: message %s", ErrNotFound, msgID)
		}
		sess.Messages = model.Reconcile(sess.Messages, model.ToggleBookmark{ID: msgID})
		return nil
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Bookmarks returns every bookmarked message, newest sessions first.
func (s *Store) Bookmarks() []Bookmark {
	var out []Bookmark
	for _, sess := range s.List("") {
		for _, m := range sess.Messages {
			if m.Bookmarked {
				out = append(out, Bookmark{SessionID: sess.ID, SessionTitle: sess.Title, Message: m})
			}
		}
	}
	return out
}

// Stats summarizes all sessions and the active one.
func (s *Store) Stats() model.Stats {
	active, _ := s.Active()
	return model.ComputeStats(s.List(""), active)
}

// =============================================================================
// RELOAD / WATCH
// =============================================================================

// Reload replaces in-memory sessions with what is stored. Sessions that are
// streaming right now keep their in-memory state. On corrupt data the store
// is left unchanged and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded, err := s.load(ctx)
	if err != nil {
		s.log.WithError(err).Warn("reload failed, keeping current sessions")
		return err
	}

	s.mu.Lock()
	for id, sess := range s.sessions {
		if _, streaming := sess.Streaming(); streaming {
			loaded[id] = sess
		}
	}
	s.sessions = loaded
	if _, ok := s.sessions[s.activeID]; !ok {
		s.activeID = ""
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.log.WithField("sessions", n).Info("sessions reloaded after external change")
	return nil
}

// Watch reloads the store whenever the backend reports an external change.
// Backends that cannot watch return nil and do nothing.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.backend.(storage.Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, s.key, func() {
		_ = s.Reload(ctx)
	})
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
