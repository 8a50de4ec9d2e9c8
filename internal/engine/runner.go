// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

var (
	// ErrEmptyInput is returned when there is neither text nor an attachment.
	ErrEmptyInput = cloud.ErrEmptyInput

	// ErrSendInFlight is returned when the session already has a send running.
	ErrSendInFlight = errors.New("a reply is already streaming for this session")
)

// Streamer sends a completion request and reports content fragments.
// *cloud.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, token string, req cloud.CompletionRequest, onFragment func(string)) (*cloud.StreamStats, error)
}

// Recorder observes sends. *telemetry.Recorder implements it.
type Recorder interface {
	SendStarted()
	RecordSend(rec telemetry.SendRecord)
}

type nopRecorder struct{}

func (nopRecorder) SendStarted()                   {}
func (nopRecorder) RecordSend(telemetry.SendRecord) {}

// Input is what the user submits.
type Input struct {
	Text        string
	Attachments []model.Attachment

	// OnFragment, if set, is called with each content fragment after the
	// store has been updated. It runs on the streaming goroutine.
	OnFragment func(fragment string)
}

// Result describes a finalized send.
type Result struct {
	SessionID        string
	UserMessage      model.Message
	AssistantMessage model.Message
	Fragments        int
	Noise            int
	TTFT             time.Duration
	Duration         time.Duration
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner drives sends against a session.Store.
type Runner struct {
	store    *session.Store
	streamer Streamer
	creds    CredentialProvider
	limiter  *rate.Limiter
	notifier Notifier
	recorder Recorder
	log      logrus.FieldLogger

	paramsMu     sync.RWMutex
	params       cloud.GenerationParams
	systemPrompt string

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithParams sets the generation parameters.
func WithParams(p cloud.GenerationParams) Option {
	return func(r *Runner) { r.params = p }
}

// WithSystemPrompt sets a system prompt sent before the transcript.
func WithSystemPrompt(prompt string) Option {
	return func(r *Runner) { r.systemPrompt = strings.TrimSpace(prompt) }
}

// WithLimiter throttles sends.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *Runner) { r.limiter = l }
}

// WithRequestsPerMinute throttles sends to n per minute. n <= 0 disables
// the throttle.
func WithRequestsPerMinute(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithNotifier sets the success notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRunner creates a Runner. The store and credential provider are
// required; nothing is read from globals.
func NewRunner(store *session.Store, streamer Streamer, creds CredentialProvider, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		streamer: streamer,
		creds:    creds,
		recorder: nopRecorder{},
		log:      logrus.StandardLogger(),
		params:   cloud.DefaultParams(),
		inFlight: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Params returns the current generation parameters.
func (r *Runner) Params() cloud.GenerationParams {
	r.paramsMu.RLock()
	defer r.paramsMu.RUnlock()
	return r.params
}

// SetModel changes the model for subsequent sends. Aliases are resolved.
func (r *Runner) SetModel(id string) string {
	resolved := cloud.ResolveModel(id)
	r.paramsMu.Lock()
	r.params.Model = resolved
	r.paramsMu.Unlock()
	return resolved
}

// Streaming reports whether sessionID has a send in flight.
func (r *Runner) Streaming(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[sessionID]
	return ok
}

// Cancel aborts the send in flight for sessionID. It reports whether there
// was one. Cancelling twice is harmless.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.inFlight[sessionID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelAll aborts every send in flight.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.inFlight {
		cancel()
	}
}

// acquire registers a send for sessionID.
func (r *Runner) acquire(ctx context.Context, sessionID string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[sessionID]; busy {
		return nil, nil, ErrSendInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	r.inFlight[sessionID] = cancel
	release := func() {
		cancel()
		r.mu.Lock()
		delete(r.inFlight, sessionID)
		r.mu.Unlock()
	}
	return sendCtx, release, nil
}

// =============================================================================
// SEND
// =============================================================================

// Send submits in to the session and streams the reply into it.
//
// Errors from the completion service are *cloud.Error and match the cloud
// sentinels with errors.Is. When Send fails after the user turn was
// appended, that turn stays and the placeholder is gone.
func (r *Runner) Send(ctx context.Context, sessionID string, in Input) (*Result, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
		return nil, ErrEmptyInput
	}
	for _, a := range in.Attachments {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	token, ready := r.creds.Credential(ctx)
	if !ready {
		return nil, cloud.NewError(cloud.KindConfiguration, "OpenRouter API key not set", nil)
	}

	sendCtx, release, err := r.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	log := r.log.WithField("session", sessionID)

	if r.limiter != nil {
		if err := r.limiter.Wait(sendCtx); err != nil {
			return nil, cloud.Classify(sendCtx, fmt.Errorf("throttle: %w", err))
		}
	}

	sess, err := r.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if _, busy := sess.Streaming(); busy {
		return nil, ErrSendInFlight
	}
	prior := sess.Messages

	content := model.ComposeUserContent(in.Text, in.Attachments)
	params := r.Params()
	req := cloud.BuildRequest(prior, content, r.systemPrompt, params)

	// Cleanup writes must land even when the send was cancelled.
	storeCtx := context.WithoutCancel(ctx)

	user := model.NewUserMessage(content)
	if _, err := r.store.Append(storeCtx, sessionID, user); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
		log.WithError(err).Warn("user message not persisted")
	}

	placeholder := model.NewPlaceholder()
	withPlaceholder, err := r.store.Apply(storeCtx, sessionID, model.AppendPlaceholder{Message: placeholder}, false)
	if err != nil {
		return nil, err
	}
	if _, ok := withPlaceholder.Message(placeholder.ID); !ok {
		// Another writer is streaming into this session.
		return nil, ErrSendInFlight
	}

	log.WithFields(logrus.Fields{
		"model":       req.Model,
		"messages":    len(req.Messages),
		"attachments": len(in.Attachments),
	}).Debug("sending")
	r.recorder.SendStarted()

	var acc strings.Builder
	stats, streamErr := r.streamer.Stream(sendCtx, token, req, func(fragment string) {
		acc.WriteString(fragment)
		if _, err := r.store.Apply(storeCtx, sessionID, model.UpdateStreamingContent{ID: placeholder.ID, Content: acc.String()}, false); err != nil {
			log.WithError(err).Debug("streaming update dropped")
		}
		if in.OnFragment != nil {
			in.OnFragment(fragment)
		}
	})
	if stats == nil {
		stats = &cloud.StreamStats{}
	}

	record := telemetry.SendRecord{
		SessionID: sessionID,
		Model:     req.Model,
		Fragments: stats.Fragments,
		Noise:     stats.Noise,
		TTFT:      stats.TTFT,
		Duration:  stats.Duration,
	}

	if streamErr != nil {
		cerr := cloud.Classify(sendCtx, streamErr)
		r.fail(storeCtx, sessionID, placeholder.ID, log)
		record.Outcome = cerr.Kind.String()
		r.recorder.RecordSend(record)
		log.WithError(cerr).WithField("kind", cerr.Kind).Info("send failed")
		return nil, cerr
	}

	final, err := r.store.Apply(storeCtx, sessionID, model.Finalize{ID: placeholder.ID, Content: acc.String()}, true)
	if err != nil && final == nil {
		record.Outcome = cloud.KindTransport.String()
		r.recorder.RecordSend(record)
		return nil, err
	}
	if err != nil {
		log.WithError(err).Warn("finalized reply not persisted")
	}

	reply, ok := final.Message(placeholder.ID)
	if !ok {
		record.Outcome = cloud.KindTransport.String()
		r.recorder.RecordSend(record)
		return nil, fmt.Errorf("%w: reply %s was removed before it was finalized", session.ErrNotFound, placeholder.ID)
	}
	record.Outcome = telemetry.OutcomeOK
	r.recorder.RecordSend(record)

	if r.notifier != nil {
		go r.notifier.Notify(sessionID, reply)
	}

	log.WithFields(logrus.Fields{
		"fragments": stats.Fragments,
		"noise":     stats.Noise,
		"duration":  stats.Duration,
	}).Debug("reply finalized")

	return &Result{
		SessionID:        sessionID,
		UserMessage:      user,
		AssistantMessage: reply,
		Fragments:        stats.Fragments,
		Noise:            stats.Noise,
		TTFT:             stats.TTFT,
		Duration:         stats.Duration,
	}, nil
}

// fail removes the placeholder and persists.
func (r *Runner) fail(ctx context.Context, sessionID, placeholderID string, log logrus.FieldLogger) {
	if _, err := r.store.Apply(ctx, sessionID, model.RemoveMessage{ID: placeholderID}, true); err != nil {
		log.WithError(err).Warn("placeholder removal not persisted")
	}
}
