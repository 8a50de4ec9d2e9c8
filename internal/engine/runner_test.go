// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

const testKey = "sk-or-test-key"

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

// fakeStreamer scripts a stream without HTTP.
type fakeStreamer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error)
}

func (f *fakeStreamer) Stream(ctx context.Context, _ string, req cloud.CompletionRequest, onFragment func(string)) (*cloud.StreamStats, error) {
	f.calls.Add(1)
	return f.fn(ctx, req, onFragment)
}

type fixture struct {
	store   *session.Store
	backend *storage.MemoryBackend
	runner  *Runner
	sess    *model.Session
}

// newFixture builds a store holding one session with a prior exchange.
func newFixture(t *testing.T, streamer Streamer, creds CredentialProvider, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	store, err := session.Open(ctx, backend, session.WithLogger(quietLogger()))
	require.NoError(t, err)

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	sess, err = store.Replace(ctx, sess.ID, []model.Message{
		model.NewUserMessage("hi"),
		model.NewMessage(model.RoleAssistant, "hello"),
	})
	require.NoError(t, err)

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return &fixture{
		store:   store,
		backend: backend,
		runner:  NewRunner(store, streamer, creds, opts...),
		sess:    sess,
	}
}

func (f *fixture) transcript(t *testing.T) []model.Message {
	t.Helper()
	s, err := f.store.Get(f.sess.ID)
	require.NoError(t, err)
	return s.Messages
}

func (f *fixture) persisted(t *testing.T) []model.Message {
	t.Helper()
	blob, err := f.backend.Get(context.Background(), storage.SessionsKey)
	require.NoError(t, err)
	all, err := storage.DecodeSessions(blob)
	require.NoError(t, err)
	return all[f.sess.ID].Messages
}

func newOpenRouter(t *testing.T, handler http.HandlerFunc) *cloud.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return cloud.NewClient(cloud.WithBaseURL(server.URL), cloud.WithLogger(quietLogger()))
}

func sse(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, l := range lines {
		_, _ = io.WriteString(w, l)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// =============================================================================
// END TO END SCENARIOS
// =============================================================================

func TestSend_RecursionScenario(t *testing.T) {
	var gotReq cloud.CompletionRequest
	var gotAuth string
	client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		sse(w,
			"data: {\"choices\":[{\"delta\":{\"content\":\"Recur\"}}]}\n",
			"data: {\"choices\":[{\"delta\":{\"content\":\"sion is...\"}}]}\n",
			"data: [DONE]\n",
		)
	})
	f := newFixture(t, client, StaticCredential(testKey))

	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "explain recursion"})
	require.NoError(t, err)

	msgs := f.transcript(t)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.RoleUser, msgs[2].Role)
	assert.Equal(t, "explain recursion", msgs[2].Content)
	assert.Equal(t, model.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "Recursion is...", msgs[3].Content)
	assert.False(t, msgs[3].IsStreaming)

	stored := f.persisted(t)
	require.Len(t, stored, 4)
	assert.Equal(t, "Recursion is...", stored[3].Content)
	assert.False(t, stored[3].IsStreaming)

	assert.Equal(t, "Bearer "+testKey, gotAuth)
	assert.True(t, gotReq.Stream)
	assert.Equal(t, cloud.DefaultModel, gotReq.Model)
	assert.Equal(t, 0.7, gotReq.Temperature)
	assert.Equal(t, 1000, gotReq.MaxTokens)
	assert.Equal(t, []cloud.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "explain recursion"},
	}, gotReq.Messages)

	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, msgs[3].ID, res.AssistantMessage.ID)
	assert.Equal(t, msgs[2].ID, res.UserMessage.ID)
	assert.False(t, f.runner.Streaming(f.sess.ID))
}

func TestSend_UnauthorizedRemovesPlaceholder(t *testing.T) {
	client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"code":401,"message":"No auth credentials found"}}`)
	})
	f := newFixture(t, client, StaticCredential(testKey))

	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "explain recursion"})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, cloud.ErrAuthentication)
	assert.Equal(t, cloud.KindAuthentication, cloud.KindOf(err))

	msgs := f.transcript(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "explain recursion", msgs[2].Content)
	for _, m := range msgs {
		assert.False(t, m.IsStreaming)
	}
	assert.Len(t, f.persisted(t), 3)
}

func TestSend_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusPaymentRequired, cloud.ErrQuota},
		{http.StatusTooManyRequests, cloud.ErrRateLimited},
		{http.StatusInternalServerError, cloud.ErrTransport},
		{http.StatusBadRequest, cloud.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			f := newFixture(t, client, StaticCredential(testKey))

			_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
			assert.ErrorIs(t, err, tt.target)
			assert.Len(t, f.transcript(t), 3)
		})
	}
}

func TestSend_EmptyStreamFinalizesEmpty(t *testing.T) {
	client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		sse(w)
	})
	f := newFixture(t, client, StaticCredential(testKey))

	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	require.NoError(t, err)

	msgs := f.transcript(t)
	require.Len(t, msgs, 4)
	assert.Equal(t, "", msgs[3].Content)
	assert.False(t, msgs[3].IsStreaming)
	assert.Zero(t, res.Fragments)
}

// =============================================================================
// GUARDS
// =============================================================================

func TestSend_NoCredentialNeverTouchesNetwork(t *testing.T) {
	var hits atomic.Int32
	client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	f := newFixture(t, client, StaticCredential("   "))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "hello?"})
	assert.ErrorIs(t, err, cloud.ErrConfiguration)
	assert.Zero(t, hits.Load())
	assert.Len(t, f.transcript(t), 2, "nothing is appended before the credential check")
}

func TestSend_EmptyInput(t *testing.T) {
	streamer := &fakeStreamer{fn: func(context.Context, cloud.CompletionRequest, func(string)) (*cloud.StreamStats, error) {
		return &cloud.StreamStats{}, nil
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: " \n\t"})
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, streamer.calls.Load())
}

func TestSend_AttachmentOnly(t *testing.T) {
	var got cloud.CompletionRequest
	streamer := &fakeStreamer{fn: func(_ context.Context, req cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		got = req
		emit("Looks fine.")
		return &cloud.StreamStats{Fragments: 1}, nil
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{
		Attachments: []model.Attachment{{Name: "main.go", Content: "package main\n"}},
	})
	require.NoError(t, err)

	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, "Attached file: main.go\n```\npackage main\n```", last.Content)
}

func TestSend_OversizeAttachment(t *testing.T) {
	streamer := &fakeStreamer{}
	f := newFixture(t, streamer, StaticCredential(testKey))

	big := make([]byte, model.MaxAttachmentBytes+1)
	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{
		Attachments: []model.Attachment{{Name: "big.txt", Content: string(big)}},
	})
	assert.ErrorIs(t, err, model.ErrAttachmentTooLarge)
	assert.Len(t, f.transcript(t), 2)
}

func TestSend_UnknownSession(t *testing.T) {
	f := newFixture(t, &fakeStreamer{}, StaticCredential(testKey))
	_, err := f.runner.Send(context.Background(), "missing", Input{Text: "x"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.False(t, f.runner.Streaming("missing"))
}

func TestSend_InFlightGuard(t *testing.T) {
	started := make(chan struct{})
	releaseStream := make(chan struct{})
	streamer := &fakeStreamer{fn: func(ctx context.Context, req cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		if len(req.Messages) == 3 {
			close(started)
			<-releaseStream
		}
		emit("ok")
		return &cloud.StreamStats{Fragments: 1}, nil
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))
	other, err := f.store.Create(context.Background())
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "first"})
		return err
	})
	<-started
	assert.True(t, f.runner.Streaming(f.sess.ID))

	_, err = f.runner.Send(context.Background(), f.sess.ID, Input{Text: "second"})
	assert.ErrorIs(t, err, ErrSendInFlight)

	// A different session is not blocked.
	_, err = f.runner.Send(context.Background(), other.ID, Input{Text: "elsewhere"})
	assert.NoError(t, err)

	close(releaseStream)
	require.NoError(t, g.Wait())

	msgs := f.transcript(t)
	require.Len(t, msgs, 4, "the rejected send appended nothing")
	assert.Equal(t, "first", msgs[2].Content)
}

func TestSend_RejectsSessionStreamingElsewhere(t *testing.T) {
	streamer := &fakeStreamer{}
	f := newFixture(t, streamer, StaticCredential(testKey))
	foreign := model.NewPlaceholder()
	_, err := f.store.Apply(context.Background(), f.sess.ID, model.AppendPlaceholder{Message: foreign}, false)
	require.NoError(t, err)

	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "second"})
	assert.ErrorIs(t, err, ErrSendInFlight)
	assert.Nil(t, res)
	assert.Equal(t, int32(0), streamer.calls.Load())
	assert.Len(t, f.transcript(t), 3)
}

func TestSend_ReplyRemovedBeforeFinalize(t *testing.T) {
	var f *fixture
	streamer := &fakeStreamer{fn: func(ctx context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		emit("partial")
		s, err := f.store.Get(f.sess.ID)
		require.NoError(t, err)
		ph, ok := s.Streaming()
		require.True(t, ok)
		_, err = f.store.Apply(ctx, f.sess.ID, model.RemoveMessage{ID: ph.ID}, true)
		require.NoError(t, err)
		return &cloud.StreamStats{Fragments: 1}, nil
	}}
	f = newFixture(t, streamer, StaticCredential(testKey))

	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "hello?"})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Nil(t, res)
	for _, m := range f.transcript(t) {
		assert.False(t, m.IsStreaming)
		assert.NotEqual(t, "partial", m.Content)
	}
}

// =============================================================================
// STATE MACHINE PROPERTIES
// =============================================================================

func TestSend_AtMostOneStreamingMessage(t *testing.T) {
	var f *fixture
	var maxStreaming int
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		for _, frag := range []string{"a", "b", "c"} {
			emit(frag)
			n := 0
			for _, m := range f.transcript(t) {
				if m.IsStreaming {
					n++
				}
			}
			if n > maxStreaming {
				maxStreaming = n
			}
		}
		return &cloud.StreamStats{Fragments: 3}, nil
	}}
	f = newFixture(t, streamer, StaticCredential(testKey))

	for i := 0; i < 3; i++ {
		_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "again"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, maxStreaming)
	assert.Len(t, f.transcript(t), 8)
}

func TestSend_ContentIsFullAccumulator(t *testing.T) {
	var f *fixture
	var seen []string
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		for _, frag := range []string{"Hel", "lo", " world"} {
			emit(frag)
			msg, ok := model.StreamingMessage(f.transcript(t))
			require.True(t, ok)
			seen = append(seen, msg.Content)
		}
		return &cloud.StreamStats{Fragments: 3}, nil
	}}
	f = newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "greet"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, seen)
}

func TestSend_OnFragmentSeesEachFragment(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		emit("a")
		emit("b")
		return &cloud.StreamStats{Fragments: 2}, nil
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	var got []string
	res, err := f.runner.Send(context.Background(), f.sess.ID, Input{
		Text:       "x",
		OnFragment: func(s string) { got = append(got, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, "ab", res.AssistantMessage.Content)
}

func TestSend_StreamingUpdatesAreNotPersisted(t *testing.T) {
	var f *fixture
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		emit("partial")
		stored := f.persisted(t)
		assert.Len(t, stored, 3, "only the user turn is persisted while streaming")
		return &cloud.StreamStats{Fragments: 1}, nil
	}}
	f = newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	require.NoError(t, err)
	assert.Len(t, f.persisted(t), 4)
}

func TestSend_MidStreamFailureDiscardsPartial(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		emit("half an ans")
		return &cloud.StreamStats{Fragments: 1}, cloud.NewError(cloud.KindTransport, "", errors.New("connection reset by peer"))
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	assert.ErrorIs(t, err, cloud.ErrTransport)

	for _, m := range append(f.transcript(t), f.persisted(t)...) {
		assert.NotEqual(t, "half an ans", m.Content)
		assert.False(t, m.IsStreaming)
	}
	assert.Len(t, f.transcript(t), 3)
}

func TestSend_PlainErrorIsClassified(t *testing.T) {
	streamer := &fakeStreamer{fn: func(context.Context, cloud.CompletionRequest, func(string)) (*cloud.StreamStats, error) {
		return nil, errors.New("boom")
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	var cerr *cloud.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cloud.KindTransport, cerr.Kind)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestSend_CancelMidStream(t *testing.T) {
	firstFragment := make(chan struct{})
	streamer := &fakeStreamer{fn: func(ctx context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		emit("par")
		close(firstFragment)
		<-ctx.Done()
		return &cloud.StreamStats{Fragments: 1}, cloud.Classify(ctx, ctx.Err())
	}}
	f := newFixture(t, streamer, StaticCredential(testKey))

	go func() {
		<-firstFragment
		assert.True(t, f.runner.Cancel(f.sess.ID))
		f.runner.Cancel(f.sess.ID)
	}()

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	assert.ErrorIs(t, err, cloud.ErrCancelled)

	assert.Len(t, f.transcript(t), 3)
	assert.Len(t, f.persisted(t), 3)
	assert.False(t, f.runner.Streaming(f.sess.ID))
	assert.False(t, f.runner.Cancel(f.sess.ID), "nothing left to cancel")
}

func TestSend_CallerContextCancel(t *testing.T) {
	client := newOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"slow\"}}]}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	f := newFixture(t, client, StaticCredential(testKey))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		assert.Eventually(t, func() bool {
			m, ok := model.StreamingMessage(f.transcript(t))
			return ok && m.Content == "slow"
		}, 5*time.Second, 10*time.Millisecond)
		cancel()
	}()

	_, err := f.runner.Send(ctx, f.sess.ID, Input{Text: "x"})
	assert.ErrorIs(t, err, cloud.ErrCancelled)
	assert.Len(t, f.transcript(t), 3)
	assert.Len(t, f.persisted(t), 3, "cleanup persists even though the caller context is done")
}

func TestSend_ThrottleHonoursCancel(t *testing.T) {
	streamer := &fakeStreamer{fn: func(context.Context, cloud.CompletionRequest, func(string)) (*cloud.StreamStats, error) {
		return &cloud.StreamStats{}, nil
	}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())
	f := newFixture(t, streamer, StaticCredential(testKey), WithLimiter(limiter))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := f.runner.Send(ctx, f.sess.ID, Input{Text: "x"})
	assert.ErrorIs(t, err, cloud.ErrCancelled)
	assert.Zero(t, streamer.calls.Load())
	assert.Len(t, f.transcript(t), 2)
}

// =============================================================================
// SIDE EFFECTS
// =============================================================================

func TestSend_NotifierOnlyOnSuccess(t *testing.T) {
	fail := atomic.Bool{}
	streamer := &fakeStreamer{fn: func(_ context.Context, _ cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		if fail.Load() {
			return nil, cloud.NewError(cloud.KindQuota, "", nil)
		}
		emit("done")
		return &cloud.StreamStats{Fragments: 1}, nil
	}}
	notified := make(chan model.Message, 4)
	notifier := NotifierFunc(func(_ string, reply model.Message) { notified <- reply })
	f := newFixture(t, streamer, StaticCredential(testKey), WithNotifier(notifier))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	require.NoError(t, err)
	select {
	case reply := <-notified:
		assert.Equal(t, "done", reply.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier not called")
	}

	fail.Store(true)
	_, err = f.runner.Send(context.Background(), f.sess.ID, Input{Text: "y"})
	assert.ErrorIs(t, err, cloud.ErrQuota)
	select {
	case <-notified:
		t.Fatal("notifier called on failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend_NotifierDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	streamer := &fakeStreamer{fn: func(context.Context, cloud.CompletionRequest, func(string)) (*cloud.StreamStats, error) {
		return &cloud.StreamStats{}, nil
	}}
	notifier := NotifierFunc(func(string, model.Message) { <-block })
	f := newFixture(t, streamer, StaticCredential(testKey), WithNotifier(notifier))

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send waited for the notifier")
	}
}

func TestSend_RecordsTelemetry(t *testing.T) {
	streamer := &fakeStreamer{fn: func(_ context.Context, req cloud.CompletionRequest, emit func(string)) (*cloud.StreamStats, error) {
		if req.Messages[len(req.Messages)-1].Content == "fail" {
			return nil, cloud.NewError(cloud.KindRateLimit, "", nil)
		}
		emit("a")
		emit("b")
		return &cloud.StreamStats{Fragments: 2, Noise: 1, Duration: time.Second}, nil
	}}
	usage := telemetry.NewUsageTracker()
	f := newFixture(t, streamer, StaticCredential(testKey), WithRecorder(telemetry.NewRecorder(usage)))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "ok"})
	require.NoError(t, err)
	_, err = f.runner.Send(context.Background(), f.sess.ID, Input{Text: "fail"})
	require.Error(t, err)

	sum := usage.Summary()
	assert.Equal(t, 2, sum.Sends)
	assert.Equal(t, 1, sum.Outcomes[telemetry.OutcomeOK])
	assert.Equal(t, 1, sum.Outcomes["rate_limit"])
	assert.Equal(t, 2, sum.ByModel[cloud.DefaultModel].Fragments)
}

// =============================================================================
// PARAMETERS
// =============================================================================

func TestRunner_SystemPromptAndModel(t *testing.T) {
	var got cloud.CompletionRequest
	streamer := &fakeStreamer{fn: func(_ context.Context, req cloud.CompletionRequest, _ func(string)) (*cloud.StreamStats, error) {
		got = req
		return &cloud.StreamStats{}, nil
	}}
	f := newFixture(t, streamer, StaticCredential(testKey),
		WithSystemPrompt("  Be terse.  "),
		WithParams(cloud.GenerationParams{Model: "x/y", Temperature: 0.1, MaxTokens: 64}),
	)

	assert.Equal(t, "openai/gpt-4-turbo", f.runner.SetModel("gpt4"))

	_, err := f.runner.Send(context.Background(), f.sess.ID, Input{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4-turbo", got.Model)
	assert.Equal(t, 0.1, got.Temperature)
	assert.Equal(t, 64, got.MaxTokens)
	require.NotEmpty(t, got.Messages)
	assert.Equal(t, cloud.ChatMessage{Role: "system", Content: "Be terse."}, got.Messages[0])
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()

	tok, ok := StaticCredential(" k ").Credential(ctx)
	assert.True(t, ok)
	assert.Equal(t, "k", tok)

	m := NewMutableCredential("")
	_, ok = m.Credential(ctx)
	assert.False(t, ok)
	m.Set("new")
	tok, ok = m.Credential(ctx)
	assert.True(t, ok)
	assert.Equal(t, "new", tok)

	fn := CredentialFunc(func(context.Context) (string, bool) { return "f", true })
	tok, ok = fn.Credential(ctx)
	assert.True(t, ok)
	assert.Equal(t, "f", tok)
}
