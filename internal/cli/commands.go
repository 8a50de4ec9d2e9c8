// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot command handlers.
//
// Every handler writes its normal output to app.Out, progress and stats to
// app.Err, and returns errors for Run to display.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/telemetry"
)

// =============================================================================
// ASK
// =============================================================================

// askResult is the --json payload of ask.
type askResult struct {
	SessionID  string `json:"session_id"`
	Model      string `json:"model"`
	Reply      string `json:"reply"`
	Fragments  int    `json:"fragments"`
	TTFTMs     int64  `json:"ttft_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// HandleAsk sends one prompt and prints the reply. Without --session a new
// chat is created; it is removed again if nothing could be sent. stdin, if
// not nil, supplies the prompt when none is given on the command line.
func HandleAsk(ctx context.Context, app *App, args Args, stdin io.Reader) error {
	query := strings.TrimSpace(args.Query)
	if query == "" && stdin != nil {
		data, err := io.ReadAll(io.LimitReader(stdin, model.MaxAttachmentBytes))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}

	var attachments []model.Attachment
	if args.File != "" {
		att, err := readAttachment(args.File)
		if err != nil {
			return err
		}
		attachments = append(attachments, att)
	}
	if query == "" && len(attachments) == 0 {
		return ErrMissingArgument("question", `rigchat ask "what is a goroutine?"`)
	}

	var sessionID string
	created := false
	if args.SessionID != "" {
		id, err := resolveSessionRef(app.Store, args.SessionID, nil)
		if err != nil {
			return err
		}
		sessionID = id
	} else {
		sess, err := app.Store.Create(ctx)
		if sess == nil {
			return err
		}
		if err != nil {
			app.Log.WithError(err).Warn("new chat not persisted")
		}
		sessionID, created = sess.ID, true
	}

	streamed := !args.JSON && !app.Renderer.Enabled()
	printed := false
	in := engine.Input{Text: query, Attachments: attachments}
	if streamed {
		in.OnFragment = func(fragment string) {
			printed = true
			_, _ = io.WriteString(app.Out, fragment)
		}
	}

	res, err := app.Runner.Send(ctx, sessionID, in)
	if printed {
		fmt.Fprintln(app.Out)
	}
	if err != nil {
		if created {
			discardIfEmpty(app, sessionID)
		}
		return err
	}

	modelID := app.Runner.Params().Model
	if args.JSON {
		return NewJSONResponse("ask", askResult{
			SessionID:  res.SessionID,
			Model:      modelID,
			Reply:      res.AssistantMessage.Content,
			Fragments:  res.Fragments,
			TTFTMs:     res.TTFT.Milliseconds(),
			DurationMs: res.Duration.Milliseconds(),
		}).Write(app.Out)
	}
	if !streamed {
		fmt.Fprint(app.Out, app.Renderer.Render(res.AssistantMessage.Content))
	}
	if !args.Quiet {
		printSendStats(app.Err, modelID, res)
	}
	return nil
}

// discardIfEmpty deletes a chat that never received a message.
func discardIfEmpty(app *App, id string) {
	sess, err := app.Store.Get(id)
	if err != nil || len(sess.Messages) > 0 {
		return
	}
	if err := app.Store.Delete(context.Background(), id); err != nil {
		app.Log.WithError(err).Debug("empty chat not removed")
	}
}

// printSendStats prints the one-line summary shown after a reply.
func printSendStats(w io.Writer, modelID string, res *engine.Result) {
	parts := []string{modelID, fmt.Sprintf("%d fragments", res.Fragments)}
	if res.Fragments > 0 {
		parts = append(parts, "first token "+formatDurationShort(res.TTFT))
	}
	parts = append(parts, formatDurationShort(res.Duration))
	if res.Noise > 0 {
		parts = append(parts, fmt.Sprintf("%d lines dropped", res.Noise))
	}
	fmt.Fprintf(w, "%s %s\n", DimStyle.Render("[Stats]"), DimStyle.Render(strings.Join(parts, " | ")))
}

// =============================================================================
// SESSIONS
// =============================================================================

// sessionSummary is the --json shape of a listed chat.
type sessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HandleSessions lists, shows or deletes saved chats.
func HandleSessions(ctx context.Context, app *App, args Args) error {
	switch args.Subcommand {
	case "", "list", "ls":
		return listSessions(app, args.JSON)

	case "show", "cat":
		id, err := resolveSessionRef(app.Store, args.SessionID, nil)
		if err != nil {
			return err
		}
		sess, err := app.Store.Get(id)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("sessions show", sess).Write(app.Out)
		}
		printTranscript(app.Out, sess, app.Renderer)
		return nil

	case "delete", "rm":
		id, err := resolveSessionRef(app.Store, args.SessionID, nil)
		if err != nil {
			return err
		}
		sess, _ := app.Store.Get(id)
		if err := app.Store.Delete(ctx, id); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("sessions delete", map[string]string{"id": id}).Write(app.Out)
		}
		fmt.Fprintf(app.Out, "%s Deleted %q\n", SuccessStyle.Render("[OK]"), sess.Title)
		return nil

	default:
		return NewValidationError("subcommand", args.Subcommand, "must be list, show or delete")
	}
}

func listSessions(app *App, jsonMode bool) error {
	sessions := app.Store.List("")
	if jsonMode {
		out := make([]sessionSummary, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionSummary{
				ID:        s.ID,
				Title:     s.Title,
				Messages:  len(s.Messages),
				CreatedAt: s.CreatedAt,
				UpdatedAt: s.UpdatedAt,
			})
		}
		return NewJSONResponse("sessions list", out).Write(app.Out)
	}
	printSessionList(app.Out, sessions, "")
	return nil
}

// printSessionList prints a numbered chat list, newest first, marking
// activeID.
func printSessionList(w io.Writer, sessions []*model.Session, activeID string) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No chats yet."))
		return
	}
	for i, s := range sessions {
		marker := " "
		if s.ID == activeID {
			marker = HighlightStyle.Render("*")
		}
		fmt.Fprintf(w, "%s %3d. %s  %s  %s\n",
			marker,
			i+1,
			DimStyle.Render(shortID(s.ID)),
			fitColumn(s.Title, 40),
			DimStyle.Render(fmt.Sprintf("%3d msgs  %s", len(s.Messages), formatAge(s.UpdatedAt))),
		)
	}
}

// printTranscript prints every message of sess with its position.
func printTranscript(w io.Writer, sess *model.Session, r *Renderer) {
	fmt.Fprintln(w, TitleStyle.Render(sess.Title))
	fmt.Fprintln(w, RenderSeparator())
	if len(sess.Messages) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No messages yet."))
		return
	}
	for i, m := range sess.Messages {
		header := fmt.Sprintf("%d. %s %s", i+1, RenderRole(m.Role), DimStyle.Render(m.Timestamp.Local().Format("15:04")))
		if m.Bookmarked {
			header += " " + HighlightStyle.Render("[bookmarked]")
		}
		if m.IsStreaming {
			header += " " + WarningStyle.Render("[streaming]")
		}
		fmt.Fprintln(w, header)

		content := m.Content
		if m.Role == model.RoleAssistant {
			content = r.Render(content)
		}
		fmt.Fprintln(w, strings.TrimRight(content, "\n"))
		if line := reactionLine(m); line != "" {
			fmt.Fprintln(w, DimStyle.Render(line))
		}
		fmt.Fprintln(w)
	}
}

// reactionLine renders reactions in palette order, e.g. "👍 2  🚀 1".
func reactionLine(m model.Message) string {
	var parts []string
	for _, sym := range model.ReactionSymbols {
		if n := m.Reactions[sym]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", sym, n))
		}
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// EXPORT
// =============================================================================

// HandleExport writes one chat to a file.
func HandleExport(app *App, args Args) error {
	id, err := resolveSessionRef(app.Store, args.SessionID, nil)
	if err != nil {
		return err
	}
	sess, err := app.Store.Get(id)
	if err != nil {
		return err
	}
	path, err := exportSession(sess, args.Format, args.OutDir, args.Open)
	if err != nil && path == "" {
		return err
	}
	if err != nil {
		app.Log.WithError(err).Warn("export viewer")
	}
	if args.JSON {
		return NewJSONResponse("export", map[string]string{"path": path}).Write(app.Out)
	}
	fmt.Fprintf(app.Out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func exportSession(sess *model.Session, format, dir string, open bool) (string, error) {
	opts := export.DefaultOptions()
	if dir != "" {
		opts.OutputDir = config.ExpandHome(dir)
	}
	opts.OpenAfterExport = open
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", &ValidationError{Field: "format", Value: format, Reason: "unsupported", Example: "md or json"}
	}
	return export.ExportToFile(sess, exp, opts)
}

// =============================================================================
// IMPROVE
// =============================================================================

// HandleImprove prints an improved version of a prompt.
func HandleImprove(ctx context.Context, app *App, args Args) error {
	if strings.TrimSpace(args.Query) == "" {
		return ErrMissingArgument("prompt", `rigchat improve "write a poem"`)
	}
	improved, err := app.Improve(ctx, args.Query)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("improve", map[string]string{"prompt": improved}).Write(app.Out)
	}
	fmt.Fprintln(app.Out, improved)
	return nil
}

// =============================================================================
// STATS
// =============================================================================

// statsData is the --json payload of stats.
type statsData struct {
	model.Stats
	Usage *telemetry.UsageSummary `json:"usage,omitempty"`
}

// HandleStats prints statistics over all saved chats.
func HandleStats(app *App, args Args) error {
	st := app.Store.Stats()
	if args.JSON {
		return NewJSONResponse("stats", statsData{Stats: st}).Write(app.Out)
	}
	printStats(app.Out, st, nil)
	return nil
}

// printStats prints chat statistics and, when usage has sends, what this
// process sent.
func printStats(w io.Writer, st model.Stats, usage *telemetry.UsageSummary) {
	fmt.Fprintln(w, TitleStyle.Render("Chat Statistics"))
	fmt.Fprintln(w, RenderSeparator())
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Total chats:"), formatNumber(st.TotalSessions))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Total messages:"), formatNumber(st.TotalMessages))
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Avg per chat:"), st.AvgPerSession)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Bookmarks:"), st.Bookmarks)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Reactions:"), st.Reactions)

	if cur := st.Current; cur != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, TitleStyle.Render("Current Chat"))
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Title:"), cur.Title)
		fmt.Fprintf(w, "%s%d\n", RenderLabel("Your messages:"), cur.UserMessages)
		fmt.Fprintf(w, "%s%d\n", RenderLabel("Replies:"), cur.AssistantMessages)
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Duration:"), formatDuration(cur.Duration))
	}

	if usage == nil || usage.Sends == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("This Run"))
	fmt.Fprintf(w, "%s%d (%d failed)\n", RenderLabel("Sends:"), usage.Sends, usage.Failures)
	for name, mu := range usage.ByModel {
		fmt.Fprintf(w, "%s%d sends, avg first token %s\n", RenderLabel(name+":"), mu.Sends, formatDurationShort(mu.AvgTTFT()))
	}
	if len(usage.Slowest) > 0 {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Slowest:"), formatDurationShort(usage.Slowest[0].Duration))
	}
}

// =============================================================================
// CONFIG
// =============================================================================

// HandleConfig shows or edits the config file. It does not need storage or
// a key, so it runs without an App.
func HandleConfig(w io.Writer, args Args) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := config.Load()
		if cfg == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(w, "# %s\n", err)
		}
		if args.JSON {
			return NewJSONResponse("config show", cfg.Redacted()).Write(w)
		}
		fmt.Fprint(w, cfg.String())
		return nil

	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, path)
		return nil

	case "init":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
		return nil

	case "keys":
		for _, k := range config.Keys() {
			fmt.Fprintln(w, k)
		}
		return nil

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "rigchat config get cloud.model")
		}
		cfg, err := config.Load()
		if cfg == nil {
			return err
		}
		v, err := cfg.Redacted().Get(args.ConfigKey)
		if err != nil {
			return NewValidationError("key", args.ConfigKey, err.Error())
		}
		fmt.Fprintln(w, v)
		return nil

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return ErrMissingArgument("key and value", "rigchat config set cloud.model gpt4")
		}
		return setConfigValue(w, args.ConfigKey, args.ConfigVal)

	default:
		return NewValidationError("subcommand", args.Subcommand, "must be show, path, init, keys, get or set")
	}
}

// setConfigValue edits the file only. Environment overrides are not applied
// so they are never written to disk.
func setConfigValue(w io.Writer, key, value string) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if key == "cloud.model" {
		value = cloud.ResolveModel(value)
	}
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	shown := value
	if key == "cloud.openrouter_key" || key == "storage.redis_password" {
		shown = "[REDACTED]"
	}
	fmt.Fprintf(w, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

// =============================================================================
// VERSION
// =============================================================================

// HandleVersion prints version information.
func HandleVersion(w io.Writer, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(w)
	}
	PrintVersion(w)
	return nil
}
