// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// App wires the configured components together for one process.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Store    *session.Store
	Client   *cloud.Client
	Runner   *engine.Runner
	Improver *cloud.Improver
	Creds    *engine.MutableCredential
	Usage    *telemetry.UsageTracker
	Renderer *Renderer

	Out io.Writer
	Err io.Writer

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewApp opens storage and builds the client and runner from cfg. Corrupt
// stored sessions are reported on errOut and the app starts empty.
func NewApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, out, errOut io.Writer) (*App, error) {
	backend, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	store, err := session.Open(ctx, backend, session.WithLogger(log), session.WithKey(cfg.Storage.Key))
	switch {
	case errors.Is(err, storage.ErrCorruptData):
		fmt.Fprintf(errOut, "%s stored sessions could not be read, starting with none\n", WarningStyle.Render("[Warning]"))
	case err != nil:
		_ = backend.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	client := cloud.NewClient(
		cloud.WithBaseURL(cfg.Cloud.BaseURL),
		cloud.WithSite(cfg.Cloud.SiteURL, cfg.Cloud.SiteName),
		cloud.WithHeaderTimeout(cfg.HeaderTimeout()),
		cloud.WithNoiseHook(telemetry.NoiseHook(log)),
		cloud.WithLogger(log),
	)
	creds := engine.NewMutableCredential(cfg.Cloud.OpenRouterKey)
	usage := telemetry.NewUsageTracker()

	opts := []engine.Option{
		engine.WithParams(cfg.GenerationParams()),
		engine.WithSystemPrompt(cfg.Cloud.SystemPrompt),
		engine.WithRequestsPerMinute(cfg.Cloud.RequestsPerMinute),
		engine.WithRecorder(telemetry.NewRecorder(usage)),
		engine.WithLogger(log),
	}
	if cfg.UI.Bell {
		opts = append(opts, engine.WithNotifier(engine.NewBellNotifier(errOut)))
	}

	log.WithFields(logrus.Fields{
		"backend":  cfg.Storage.Backend,
		"model":    cfg.Cloud.Model,
		"key":      cloud.KeyFingerprint(cfg.Cloud.OpenRouterKey),
		"sessions": store.Len(),
	}).Debug("app ready")

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Client:   client,
		Runner:   engine.NewRunner(store, client, creds, opts...),
		Improver: cloud.NewImprover(client),
		Creds:    creds,
		Usage:    usage,
		Renderer: &Renderer{},
		Out:      out,
		Err:      errOut,
	}, nil
}

// Start launches background work: the metrics endpoint when enabled, and
// when watch is true, reloading sessions changed by another process.
// Close stops it.
func (a *App) Start(ctx context.Context, watch bool) {
	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	if a.Config.Metrics.Enabled {
		addr := a.Config.Metrics.Addr
		g.Go(func() error {
			if err := telemetry.Serve(gctx, addr, a.Log); err != nil {
				a.Log.WithError(err).WithField("addr", addr).Warn("metrics endpoint stopped")
			}
			return nil
		})
	}
	if watch {
		g.Go(func() error {
			if err := a.Store.Watch(gctx); err != nil {
				a.Log.WithError(err).Warn("cannot watch session storage")
			}
			return nil
		})
	}
}

// Improve rewrites a draft prompt with the configured key.
func (a *App) Improve(ctx context.Context, prompt string) (string, error) {
	token, _ := a.Creds.Credential(ctx)
	return a.Improver.Improve(ctx, token, prompt)
}

// Close cancels sends in flight, stops background work and closes storage.
func (a *App) Close() error {
	a.Runner.CancelAll()
	if a.cancel != nil {
		a.cancel()
		_ = a.group.Wait()
	}
	return a.Store.Close()
}
