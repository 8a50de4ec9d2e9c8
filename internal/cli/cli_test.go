// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		bools    []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"show"},
			wantSub: "show",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"abc123", "--format", "json"},
			wantSub: "abc123",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("format") != "json" {
					t.Errorf("Flag(format) = %q, want %q", p.Flag("format"), "json")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"abc123", "--out=/tmp/x"},
			wantSub: "abc123",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("out") != "/tmp/x" {
					t.Errorf("Flag(out) = %q, want %q", p.Flag("out"), "/tmp/x")
				}
			},
		},
		{
			name:    "boolean flag",
			args:    []string{"show", "--json"},
			wantSub: "show",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("json") {
					t.Error("BoolFlag(json) should be true")
				}
			},
		},
		{
			name:    "declared boolean does not swallow positional",
			args:    []string{"--force", "abc"},
			bools:   []string{"force"},
			wantSub: "abc",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("force") {
					t.Error("BoolFlag(force) should be true")
				}
			},
		},
		{
			name:    "negative number is positional",
			args:    []string{"react", "-1"},
			wantSub: "react",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(1) != "-1" {
					t.Errorf("Positional(1) = %q, want %q", p.Positional(1), "-1")
				}
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"what", "is", "a", "goroutine"},
			wantSub: "what",
			validate: func(t *testing.T, p *ArgParser) {
				if p.PositionalCount() != 4 {
					t.Errorf("PositionalCount() = %d, want 4", p.PositionalCount())
				}
				if got := JoinPositionalArgs(p, 1); got != "is a goroutine" {
					t.Errorf("JoinPositionalArgs(1) = %q, want %q", got, "is a goroutine")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args, tt.bools...)
			if parser.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", parser.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

func TestArgParser_HasFlag(t *testing.T) {
	parser := NewArgParser([]string{"cmd", "--verbose", "--lines", "50"})

	if !parser.HasFlag("verbose") {
		t.Error("HasFlag(verbose) should be true")
	}
	if !parser.HasFlag("--lines") {
		t.Error("HasFlag(--lines) should be true")
	}
	if parser.HasFlag("nonexistent") {
		t.Error("HasFlag(nonexistent) should be false")
	}
}

func TestArgParser_EmptyArgs(t *testing.T) {
	parser := NewArgParser([]string{})
	if parser.Subcommand() != "" {
		t.Errorf("Subcommand() = %q, want empty", parser.Subcommand())
	}
	if parser.PositionalCount() != 0 {
		t.Errorf("PositionalCount() = %d, want 0", parser.PositionalCount())
	}
	if got := parser.PositionalFrom(3); len(got) != 0 {
		t.Errorf("PositionalFrom(3) = %v, want empty", got)
	}
}

func TestArgParser_FlagOrDefault(t *testing.T) {
	parser := NewArgParser([]string{"cmd", "--present", "value"})

	if parser.FlagOrDefault("present", "default") != "value" {
		t.Error("FlagOrDefault should return actual value when present")
	}
	if parser.FlagOrDefault("missing", "default") != "default" {
		t.Error("FlagOrDefault should return default when missing")
	}
}

func TestParseIntWithValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"valid positive", "42", 42, false},
		{"valid one", "1", 1, false},
		{"zero is invalid", "0", 0, true},
		{"negative is invalid", "-5", 0, true},
		{"empty is invalid", "", 0, true},
		{"non-numeric is invalid", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntWithValidation(tt.input, "count")
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseIntWithValidation(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseIntWithValidation(%q) = %d, want %d", tt.input, got, tt.want)
			}
			if err != nil && GetExitCode(err) != ExitUsageError {
				t.Errorf("GetExitCode = %d, want %d", GetExitCode(err), ExitUsageError)
			}
		})
	}
}

// =============================================================================
// COMMAND PARSING TESTS (cli.go)
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantCommand Command
		validate    func(*testing.T, Args)
	}{
		{
			name:        "no args starts chat",
			args:        nil,
			wantCommand: CmdChat,
		},
		{
			name:        "chat with model",
			args:        []string{"chat", "--model", "gpt4"},
			wantCommand: CmdChat,
			validate: func(t *testing.T, a Args) {
				if a.Model != "gpt4" {
					t.Errorf("Model = %q, want %q", a.Model, "gpt4")
				}
			},
		},
		{
			name:        "ask joins words",
			args:        []string{"ask", "What", "is", "Go?"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "What is Go?" {
					t.Errorf("Query = %q, want %q", a.Query, "What is Go?")
				}
			},
		},
		{
			name:        "ask with file and session",
			args:        []string{"ask", "-f", "notes.txt", "--session", "abc", "summarize"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.File != "notes.txt" || a.SessionID != "abc" || a.Query != "summarize" {
					t.Errorf("got File=%q SessionID=%q Query=%q", a.File, a.SessionID, a.Query)
				}
			},
		},
		{
			name:        "global flags anywhere",
			args:        []string{"ask", "--json", "hello", "-q", "--model=sonnet"},
			wantCommand: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.JSON || !a.Quiet || a.Model != "sonnet" || a.Query != "hello" {
					t.Errorf("got %+v", a)
				}
			},
		},
		{
			name:        "sessions delete",
			args:        []string{"sessions", "delete", "3"},
			wantCommand: CmdSessions,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "delete" || a.SessionID != "3" {
					t.Errorf("Subcommand = %q SessionID = %q", a.Subcommand, a.SessionID)
				}
			},
		},
		{
			name:        "export defaults",
			args:        []string{"export", "abc"},
			wantCommand: CmdExport,
			validate: func(t *testing.T, a Args) {
				if a.SessionID != "abc" || a.Format != "md" || a.OutDir != "." {
					t.Errorf("got SessionID=%q Format=%q OutDir=%q", a.SessionID, a.Format, a.OutDir)
				}
			},
		},
		{
			name:        "export json to dir",
			args:        []string{"export", "abc", "--format", "JSON", "-o", "/tmp/out"},
			wantCommand: CmdExport,
			validate: func(t *testing.T, a Args) {
				if a.Format != "json" || a.OutDir != "/tmp/out" {
					t.Errorf("got Format=%q OutDir=%q", a.Format, a.OutDir)
				}
			},
		},
		{
			name:        "export open does not swallow id",
			args:        []string{"export", "--open", "abc"},
			wantCommand: CmdExport,
			validate: func(t *testing.T, a Args) {
				if !a.Open || a.SessionID != "abc" {
					t.Errorf("got Open=%v SessionID=%q", a.Open, a.SessionID)
				}
			},
		},
		{
			name:        "config set joins value",
			args:        []string{"config", "set", "cloud.system_prompt", "be", "brief"},
			wantCommand: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "set" || a.ConfigKey != "cloud.system_prompt" || a.ConfigVal != "be brief" {
					t.Errorf("got %q %q %q", a.Subcommand, a.ConfigKey, a.ConfigVal)
				}
			},
		},
		{
			name:        "metrics addr",
			args:        []string{"--metrics-addr", ":9464", "stats"},
			wantCommand: CmdStats,
			validate: func(t *testing.T, a Args) {
				if a.MetricsAddr != ":9464" {
					t.Errorf("MetricsAddr = %q", a.MetricsAddr)
				}
			},
		},
		{
			name:        "version flag",
			args:        []string{"--version"},
			wantCommand: CmdVersion,
		},
		{
			name:        "help flag",
			args:        []string{"-h"},
			wantCommand: CmdHelp,
		},
		{
			name:        "unknown command",
			args:        []string{"frobnicate"},
			wantCommand: CmdUnknown,
			validate: func(t *testing.T, a Args) {
				if a.Name != "frobnicate" {
					t.Errorf("Name = %q", a.Name)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.args)
			if cmd != tt.wantCommand {
				t.Errorf("Command = %v, want %v", cmd, tt.wantCommand)
			}
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestParse_UsesOSArgs(t *testing.T) {
	originalArgs := os.Args
	defer func() { os.Args = originalArgs }()

	os.Args = []string{"rigchat", "stats"}
	if cmd, _ := Parse(); cmd != CmdStats {
		t.Errorf("Parse() = %v, want CmdStats", cmd)
	}
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("x", "y", "bad"), ExitUsageError},
		{"empty input", cloud.ErrEmptyInput, ExitUsageError},
		{"attachment too large", fmt.Errorf("a.txt: %w", model.ErrAttachmentTooLarge), ExitUsageError},
		{"not found", ErrNotFound("session", "abc"), ExitNotFoundError},
		{"store not found", fmt.Errorf("%w: abc", session.ErrNotFound), ExitNotFoundError},
		{"config invalid", config.ValidateErrors{{Field: "cloud.model", Message: "must not be empty"}}, ExitConfigError},
		{"missing key", cloud.NewError(cloud.KindConfiguration, "no key", nil), ExitConfigError},
		{"auth", cloud.NewError(cloud.KindAuthentication, "401", nil), ExitAuthError},
		{"quota", cloud.NewError(cloud.KindQuota, "402", nil), ExitQuotaError},
		{"rate limit", cloud.NewError(cloud.KindRateLimit, "429", nil), ExitQuotaError},
		{"cancelled", cloud.NewError(cloud.KindCancelled, "cancelled", nil), ExitCancelled},
		{"transport", cloud.NewError(cloud.KindTransport, "502", nil), ExitNetworkError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestNotFoundError_MatchesStoreSentinel(t *testing.T) {
	if !errors.Is(ErrNotFound("session", "abc"), session.ErrNotFound) {
		t.Error("session NotFoundError should match session.ErrNotFound")
	}
	if errors.Is(ErrNotFound("file", "abc"), session.ErrNotFound) {
		t.Error("file NotFoundError should not match session.ErrNotFound")
	}
}

func TestFriendlyError(t *testing.T) {
	rl := cloud.NewError(cloud.KindRateLimit, "slow down", nil)
	rl.RetryAfter = 7 * time.Second

	tests := []struct {
		err  error
		want string
	}{
		{cloud.NewError(cloud.KindConfiguration, "no key", nil), "config set cloud.openrouter_key"},
		{cloud.NewError(cloud.KindQuota, "402", nil), "credits"},
		{rl, "Retry in 7s"},
		{cloud.NewError(cloud.KindCancelled, "", nil), "Cancelled."},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := FriendlyError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("FriendlyError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}

func TestDisplayError_JSON(t *testing.T) {
	var buf strings.Builder
	DisplayError(&buf, "ask", cloud.NewError(cloud.KindAuthentication, "401", nil), true)

	out := buf.String()
	if !strings.Contains(out, `"success": false`) {
		t.Errorf("missing success=false in %s", out)
	}
	if !strings.Contains(out, `"kind": "authentication"`) {
		t.Errorf("missing kind in %s", out)
	}
}

// =============================================================================
// TERMINAL TESTS (terminal.go)
// =============================================================================

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "short line", 40, "short line"},
		{"wraps at words", "aaa bbb ccc", 9, "aaa bbb\nccc"},
		{"keeps newlines", "one\ntwo", 40, "one\ntwo"},
		{"wide runes count double", "日本 語語 本本", 9, "日本 語語\n本本"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapText(tt.text, tt.width); got != tt.want {
				t.Errorf("WrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestFitColumn(t *testing.T) {
	if got := fitColumn("hello", 8); got != "hello   " {
		t.Errorf("fitColumn pad = %q", got)
	}
	got := fitColumn("hello world", 8)
	if runewidth.StringWidth(got) != 8 || !strings.HasSuffix(got, "…") {
		t.Errorf("fitColumn truncate = %q", got)
	}
	if w := runewidth.StringWidth(fitColumn("日本語のタイトル", 7)); w != 7 {
		t.Errorf("fitColumn wide width = %d, want 7", w)
	}
}

// =============================================================================
// HELPER TESTS (helpers.go, templates.go)
// =============================================================================

func TestFormatHelpers(t *testing.T) {
	if got := formatNumber(1234567); got != "1,234,567" {
		t.Errorf("formatNumber = %q", got)
	}
	if got := formatNumber(-1200); got != "-1,200" {
		t.Errorf("formatNumber negative = %q", got)
	}
	if got := formatDurationShort(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDurationShort = %q", got)
	}
	if got := formatDurationShort(250 * time.Millisecond); got != "250ms" {
		t.Errorf("formatDurationShort ms = %q", got)
	}
	if got := formatDuration(3 * time.Hour); got != "3h" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := formatAge(time.Now()); got != "just now" {
		t.Errorf("formatAge = %q", got)
	}
}

func TestNewlineEscaping(t *testing.T) {
	text := "line one\n\nline two"
	escaped := escapeNewlines(text)
	if strings.Contains(escaped, "\n") {
		t.Errorf("escaped text still has newlines: %q", escaped)
	}
	if got := unescapeNewlines(escaped); got != text {
		t.Errorf("unescapeNewlines = %q, want %q", got, text)
	}
}

func TestTemplateByNumber(t *testing.T) {
	if len(Templates) != 5 {
		t.Fatalf("len(Templates) = %d, want 5", len(Templates))
	}
	tpl, err := TemplateByNumber("1")
	if err != nil {
		t.Fatalf("TemplateByNumber(1): %v", err)
	}
	if tpl.Title != "Code Review" {
		t.Errorf("Title = %q", tpl.Title)
	}
	if _, err := TemplateByNumber("6"); GetExitCode(err) != ExitNotFoundError {
		t.Errorf("TemplateByNumber(6) error = %v", err)
	}
	if _, err := TemplateByNumber("x"); GetExitCode(err) != ExitUsageError {
		t.Errorf("TemplateByNumber(x) error = %v", err)
	}
}

func TestReadAttachment(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("remember the milk\n"), 0644); err != nil {
		t.Fatal(err)
	}
	att, err := readAttachment(text)
	if err != nil {
		t.Fatalf("readAttachment: %v", err)
	}
	if att.Name != "notes.txt" || att.Content != "remember the milk\n" {
		t.Errorf("got %+v", att)
	}

	binary := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(binary, []byte{0x00, 0x01, 0x02}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readAttachment(binary); GetExitCode(err) != ExitUsageError {
		t.Errorf("binary file error = %v, want usage error", err)
	}

	big := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(big, []byte(strings.Repeat("a", model.MaxAttachmentBytes+1)), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readAttachment(big); !errors.Is(err, model.ErrAttachmentTooLarge) {
		t.Errorf("big file error = %v, want ErrAttachmentTooLarge", err)
	}

	if _, err := readAttachment(dir); GetExitCode(err) != ExitUsageError {
		t.Errorf("directory error = %v, want usage error", err)
	}
	if _, err := readAttachment(filepath.Join(dir, "missing.txt")); GetExitCode(err) != ExitNotFoundError {
		t.Errorf("missing file error = %v, want not found", err)
	}
}
