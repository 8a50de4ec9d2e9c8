// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for rigchat CLI.
//
// Handles the "rigchat chat" command which provides an interactive REPL
// over saved chats.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Interactive Commands (during chat):
//   /new                    Start a new chat
//   /list [filter]          List chats
//   /switch <n|id>          Switch to another chat
//   /delete <n|id>          Delete a chat
//   /rename <title>         Rename the current chat
//   /history                Show the current transcript
//   /react <n> <emoji|1-6>  React to a message
//   /bookmark <n>           Toggle a bookmark on a message
//   /bookmarks              List bookmarked messages
//   /attach [path]          Attach a text file to the next message
//   /detach                 Drop pending attachments
//   /improve <prompt>       Rewrite a prompt and prefill it
//   /template [n]           List templates or prefill one
//   /model [name]           Show or switch model
//   /stats                  Show statistics
//   /export [md|json]       Export the current chat
//   /help, /h               Show available commands
//   /quit, /q               Exit chat
//   Ctrl+C                  Cancel current reply
//   Ctrl+D                  Exit chat

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/engine"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. A non-empty suggestion is
// prefilled for editing.
func (c *ChatCLI) ReadInput(prompt, suggestion string) (string, error) {
	var (
		input string
		err   error
	)
	if suggestion != "" {
		input, err = c.line.PromptWithSuggestion(prompt, suggestion, -1)
	} else {
		input, err = c.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), util.DefaultDirPerm); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state of one interactive run.
type ChatSession struct {
	app    *App
	out    io.Writer
	errOut io.Writer
	quiet  bool

	// pending attachments go with the next message
	pending []model.Attachment

	// listing holds the ids shown by the last /list, for numbered references
	listing []string

	// draft is prefilled into the next prompt, with newlines escaped
	draft string

	exportDir string
}

// NewChatSession creates a REPL state over app.
func NewChatSession(app *App, args Args) *ChatSession {
	return &ChatSession{
		app:    app,
		out:    app.Out,
		errOut: app.Err,
		quiet:  args.Quiet,

		exportDir: ".",
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive chat until /quit, Ctrl+D or Ctrl+C at the
// prompt. Ctrl+C while a reply streams cancels only that reply.
func HandleChat(ctx context.Context, app *App, args Args) error {
	s := NewChatSession(app, args)
	if !s.quiet {
		s.printWelcome()
	}

	input := NewChatCLI()
	defer input.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Runner.CancelAll()
		}
	}()

	for {
		draft := s.draft
		s.draft = ""

		line, err := input.ReadInput(PromptStyle.Render(s.prompt()), draft)
		if err != nil {
			// Ctrl+C (liner.ErrPromptAborted) or Ctrl+D at the prompt exits.
			fmt.Fprintln(s.out)
			return nil
		}
		if draft != "" {
			line = unescapeNewlines(line)
		}

		more, err := s.handleLine(ctx, line)
		if err != nil {
			DisplayError(s.errOut, "chat", err, false)
		}
		if !more {
			return nil
		}
	}
}

// prompt shows the active chat's title.
func (s *ChatSession) prompt() string {
	if sess, ok := s.app.Store.Active(); ok {
		return fmt.Sprintf("[%s] > ", util.TruncateRunes(sess.Title, 24))
	}
	return "rigchat> "
}

// handleLine dispatches one line of input. It returns false when the chat
// should end.
func (s *ChatSession) handleLine(ctx context.Context, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return true, nil
	case strings.HasPrefix(trimmed, "/"):
		return s.handleSlashCommand(ctx, trimmed)
	case strings.EqualFold(trimmed, "exit"), strings.EqualFold(trimmed, "quit"):
		return false, nil
	}
	return true, s.sendMessage(ctx, line)
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// sendMessage sends text and any pending attachments to the active chat,
// creating one if needed.
func (s *ChatSession) sendMessage(ctx context.Context, text string) error {
	sess, err := s.app.Store.EnsureActive(ctx)
	if sess == nil {
		return err
	}
	if err != nil {
		s.app.Log.WithError(err).Warn("new chat not persisted")
	}
	before := len(sess.Messages)

	streamed := !s.app.Renderer.Enabled()
	fmt.Fprintf(s.out, "\n%s\n", RenderRole(model.RoleAssistant))

	in := engine.Input{Text: strings.TrimSpace(text), Attachments: s.pending}
	if streamed {
		in.OnFragment = func(fragment string) {
			_, _ = io.WriteString(s.out, fragment)
		}
	}

	res, err := s.app.Runner.Send(ctx, sess.ID, in)

	// Attachments are spent once the user turn is in the transcript.
	if after, getErr := s.app.Store.Get(sess.ID); getErr == nil && len(after.Messages) > before {
		s.pending = nil
	}
	if err != nil {
		fmt.Fprintln(s.out)
		return err
	}

	if streamed {
		fmt.Fprintln(s.out)
	} else {
		fmt.Fprint(s.out, s.app.Renderer.Render(res.AssistantMessage.Content))
	}
	if !s.quiet {
		printSendStats(s.errOut, s.app.Runner.Params().Model, res)
	}
	fmt.Fprintln(s.out)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a slash command. It returns false on exit.
func (s *ChatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "/quit", "/q", "/exit":
		return false, nil

	case "/help", "/h", "/?":
		s.printHelp()

	case "/new":
		sess, err := s.app.Store.Create(ctx)
		if sess == nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Started a new chat\n", SuccessStyle.Render("[OK]"))
		return true, err

	case "/list", "/ls":
		sessions := s.app.Store.List(rest)
		s.listing = s.listing[:0]
		for _, sess := range sessions {
			s.listing = append(s.listing, sess.ID)
		}
		printSessionList(s.out, sessions, s.app.Store.ActiveID())

	case "/switch", "/open":
		id, err := resolveSessionRef(s.app.Store, rest, s.listing)
		if err != nil {
			return true, err
		}
		sess, err := s.app.Store.Select(id)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Switched to %q (%d messages)\n", SuccessStyle.Render("[OK]"), sess.Title, len(sess.Messages))

	case "/delete", "/rm":
		return true, s.deleteSession(ctx, rest)

	case "/rename":
		if rest == "" {
			return true, ErrMissingArgument("title", "/rename Go generics questions")
		}
		sess, err := s.requireActive()
		if err != nil {
			return true, err
		}
		updated, err := s.app.Store.Rename(ctx, sess.ID, rest)
		if updated == nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Renamed to %q\n", SuccessStyle.Render("[OK]"), updated.Title)
		return true, err

	case "/history":
		sess, err := s.requireActive()
		if err != nil {
			return true, err
		}
		printTranscript(s.out, sess, s.app.Renderer)

	case "/react":
		return true, s.react(ctx, rest)

	case "/bookmark":
		return true, s.toggleBookmark(ctx, rest)

	case "/bookmarks":
		s.printBookmarks()

	case "/attach":
		return true, s.attach(rest)

	case "/detach":
		n := len(s.pending)
		s.pending = nil
		fmt.Fprintf(s.out, "%s Dropped %d attachment(s)\n", SuccessStyle.Render("[OK]"), n)

	case "/improve":
		return true, s.improve(ctx, rest)

	case "/template", "/templates":
		return true, s.template(rest)

	case "/model":
		s.switchModel(rest)

	case "/stats", "/status":
		usage := s.app.Usage.Summary()
		printStats(s.out, s.app.Store.Stats(), &usage)

	case "/export":
		sess, err := s.requireActive()
		if err != nil {
			return true, err
		}
		path, err := exportSession(sess, rest, s.exportDir, false)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)

	default:
		return true, NewValidationError("command", cmd, "unknown command, type /help")
	}
	return true, nil
}

// requireActive returns the active chat.
func (s *ChatSession) requireActive() (*model.Session, error) {
	sess, ok := s.app.Store.Active()
	if !ok {
		return nil, session.ErrNoActiveSession
	}
	return sess, nil
}

func (s *ChatSession) deleteSession(ctx context.Context, ref string) error {
	id, err := resolveSessionRef(s.app.Store, ref, s.listing)
	if err != nil {
		return err
	}
	if s.app.Runner.Streaming(id) {
		return engine.ErrSendInFlight
	}
	sess, err := s.app.Store.Get(id)
	if err != nil {
		return err
	}
	if err := s.app.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.listing = nil
	fmt.Fprintf(s.out, "%s Deleted %q\n", SuccessStyle.Render("[OK]"), sess.Title)
	return nil
}

// react adds a reaction. The symbol may be given directly or as its
// position in the palette.
func (s *ChatSession) react(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return ErrMissingArgument("message and reaction", "/react 2 👍  or  /react 2 1")
	}
	sess, err := s.requireActive()
	if err != nil {
		return err
	}
	msg, err := resolveMessageRef(sess, fields[0])
	if err != nil {
		return err
	}

	symbol := fields[1]
	if utf8.RuneCountInString(symbol) == 1 && symbol[0] >= '1' && symbol[0] <= '9' {
		n := int(symbol[0] - '0')
		if n > len(model.ReactionSymbols) {
			return NewValidationError("reaction", symbol, fmt.Sprintf("must be between 1 and %d", len(model.ReactionSymbols)))
		}
		symbol = model.ReactionSymbols[n-1]
	}

	updated, err := s.app.Store.React(ctx, sess.ID, msg.ID, symbol)
	if updated == nil {
		return err
	}
	if m, ok := updated.Message(msg.ID); ok {
		fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render("[OK]"), reactionLine(m))
	}
	return err
}

func (s *ChatSession) toggleBookmark(ctx context.Context, ref string) error {
	sess, err := s.requireActive()
	if err != nil {
		return err
	}
	msg, err := resolveMessageRef(sess, ref)
	if err != nil {
		return err
	}
	updated, err := s.app.Store.ToggleBookmark(ctx, sess.ID, msg.ID)
	if updated == nil {
		return err
	}
	if m, ok := updated.Message(msg.ID); ok && m.Bookmarked {
		fmt.Fprintf(s.out, "%s Bookmarked\n", SuccessStyle.Render("[OK]"))
	} else {
		fmt.Fprintf(s.out, "%s Bookmark removed\n", SuccessStyle.Render("[OK]"))
	}
	return err
}

func (s *ChatSession) printBookmarks() {
	marks := s.app.Store.Bookmarks()
	if len(marks) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("No bookmarks yet. Use /bookmark <n>."))
		return
	}
	for _, b := range marks {
		fmt.Fprintf(s.out, "%s  %s  %s\n",
			fitColumn(b.SessionTitle, 24),
			RenderRole(b.Message.Role),
			b.Message.Preview(60),
		)
	}
}

// attach queues a file for the next message, or lists the queue.
func (s *ChatSession) attach(path string) error {
	if path == "" {
		if len(s.pending) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("No attachments. Use /attach <path>."))
			return nil
		}
		for _, a := range s.pending {
			fmt.Fprintf(s.out, "  %s %s\n", a.Name, DimStyle.Render(formatNumber(len(a.Content))+" bytes"))
		}
		return nil
	}
	att, err := readAttachment(path)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, att)
	fmt.Fprintf(s.out, "%s Attached %s (%s bytes)\n", SuccessStyle.Render("[OK]"), att.Name, formatNumber(len(att.Content)))
	return nil
}

func (s *ChatSession) improve(ctx context.Context, prompt string) error {
	if prompt == "" {
		return ErrMissingArgument("prompt", "/improve explain channels")
	}
	fmt.Fprintln(s.errOut, DimStyle.Render("Improving..."))
	improved, err := s.app.Improve(ctx, prompt)
	if err != nil {
		return err
	}
	s.draft = escapeNewlines(improved)
	fmt.Fprintln(s.out, improved)
	fmt.Fprintln(s.out, DimStyle.Render("Prefilled below. Edit and press Enter to send."))
	return nil
}

func (s *ChatSession) template(ref string) error {
	if ref == "" {
		for i, t := range Templates {
			fmt.Fprintf(s.out, "%3d. %s  %s\n", i+1, fitColumn(t.Title, 20), DimStyle.Render(t.Description))
		}
		return nil
	}
	t, err := TemplateByNumber(ref)
	if err != nil {
		return err
	}
	s.draft = escapeNewlines(t.Text)
	return nil
}

func (s *ChatSession) switchModel(name string) {
	if name == "" {
		current := s.app.Runner.Params().Model
		fmt.Fprintf(s.out, "%s%s\n\n", RenderLabel("Current model:"), current)
		for _, m := range cloud.Models {
			marker := " "
			if m.ID == current {
				marker = HighlightStyle.Render("*")
			}
			fmt.Fprintf(s.out, "%s %s %s\n", marker, fitColumn(m.Name, 20), DimStyle.Render(m.ID))
		}
		fmt.Fprintf(s.out, "\n%s%s\n", RenderLabel("Aliases:"), strings.Join(cloud.AliasNames(), ", "))
		return
	}
	resolved := s.app.Runner.SetModel(name)
	fmt.Fprintf(s.out, "%s Model set to %s\n", SuccessStyle.Render("[OK]"), resolved)
	if _, known := cloud.LookupModel(resolved); !known {
		fmt.Fprintln(s.out, DimStyle.Render("Not in the catalog; sending it to OpenRouter as given."))
	}
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

func (s *ChatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("rigchat "+Version))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), s.app.Runner.Params().Model)
	fmt.Fprintf(s.out, "%s%d\n", RenderLabel("Saved chats:"), s.app.Store.Len())
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+C cancels a reply, Ctrl+D exits."))
	if _, ok := s.app.Creds.Credential(context.Background()); !ok {
		fmt.Fprintf(s.out, "%s %s\n", WarningStyle.Render("[Warning]"), FriendlyError(cloud.ErrConfiguration))
	}
	fmt.Fprintln(s.out)
}

func (s *ChatSession) printHelp() {
	fmt.Fprintln(s.out, chatHelpText)
}

const chatHelpText = `Chats:
  /new                    Start a new chat
  /list [filter]          List chats (filter by title)
  /switch <n|id>          Switch to another chat
  /delete <n|id>          Delete a chat
  /rename <title>         Rename the current chat
  /history                Show the current transcript
  /export [md|json]       Export the current chat

Messages:
  /react <n> <emoji|1-6>  React to message n (👍 ❤️ ⭐ 🚀 🧠 😊)
  /bookmark <n>           Toggle a bookmark on message n
  /bookmarks              List bookmarked messages
  /attach [path]          Attach a text file to the next message
  /detach                 Drop pending attachments

Prompts:
  /improve <prompt>       Rewrite a prompt and prefill it
  /template [n]           List templates or prefill one
  /model [name]           Show or switch model

Other:
  /stats                  Show statistics
  /help                   Show this help
  /quit                   Exit (also Ctrl+D)`
