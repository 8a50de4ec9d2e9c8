// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
)

// commandNames are used in error output.
var commandNames = map[Command]string{
	CmdChat:     "chat",
	CmdAsk:      "ask",
	CmdSessions: "sessions",
	CmdExport:   "export",
	CmdImprove:  "improve",
	CmdStats:    "stats",
	CmdConfig:   "config",
	CmdVersion:  "version",
	CmdHelp:     "help",
}

// Run executes the command line argv and returns the process exit code.
func Run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd, args := ParseArgs(argv)
	name := commandNames[cmd]

	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return ExitSuccess
	case CmdVersion:
		return exitWith(stderr, name, HandleVersion(stdout, args), args.JSON)
	case CmdUnknown:
		fmt.Fprintf(stderr, "%s unknown command %q\n\n", ErrorStyle.Render("[Error]"), args.Name)
		PrintUsage(stderr)
		return ExitUsageError
	case CmdConfig:
		return exitWith(stderr, name, HandleConfig(stdout, args), args.JSON)
	}

	cfg, err := config.Load()
	if cfg == nil {
		return exitWith(stderr, name, err, args.JSON)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s %v (using defaults)\n", WarningStyle.Render("[Warning]"), err)
	}
	applyFlags(cfg, args)

	log, closer, err := logging.NewWithOutput(cfg.Logging, stderr)
	if err != nil {
		return exitWith(stderr, name, fmt.Errorf("logging: %w", err), args.JSON)
	}
	defer closer.Close()

	if cmd != CmdChat {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	app, err := NewApp(ctx, cfg, log, stdout, stderr)
	if err != nil {
		return exitWith(stderr, name, err, args.JSON)
	}
	defer app.Close()
	app.Renderer = NewRenderer(cfg.UI, IsStdoutTTY() && !args.JSON)
	app.Start(ctx, cmd == CmdChat)

	switch cmd {
	case CmdChat:
		err = HandleChat(ctx, app, args)
	case CmdAsk:
		var in io.Reader
		if args.Query == "" && !isTerminalReader(stdin) {
			in = stdin
		}
		err = HandleAsk(ctx, app, args, in)
	case CmdSessions:
		err = HandleSessions(ctx, app, args)
	case CmdExport:
		err = HandleExport(app, args)
	case CmdImprove:
		err = HandleImprove(ctx, app, args)
	case CmdStats:
		err = HandleStats(app, args)
	}
	return exitWith(stderr, name, err, args.JSON)
}

// applyFlags layers command line flags over the loaded config.
func applyFlags(cfg *config.Config, args Args) {
	if args.Model != "" {
		cfg.Cloud.Model = cloud.ResolveModel(args.Model)
	}
	if args.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = args.MetricsAddr
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	if args.NoMarkdown {
		cfg.UI.Markdown = false
	}
}

// exitWith displays err, if any, and maps it to an exit code. In JSON mode
// the error response goes to stderr as well so stdout stays parseable.
func exitWith(w io.Writer, command string, err error, jsonMode bool) int {
	if err == nil {
		return ExitSuccess
	}
	DisplayError(w, command, err, jsonMode)
	return GetExitCode(err)
}
