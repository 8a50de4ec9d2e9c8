// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for rigchat.

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdSessions
	CmdExport
	CmdImprove
	CmdStats
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet       bool
	Verbose     bool
	JSON        bool
	NoMarkdown  bool
	Model       string
	MetricsAddr string

	// Command-specific
	Query      string // ask, improve
	File       string // ask --file
	SessionID  string // ask --session, export <id>, sessions delete <id>
	Subcommand string
	ConfigKey  string
	ConfigVal  string
	Format     string // export --format
	OutDir     string // export --out
	Open       bool   // export --open

	// Name is the unrecognized command for CmdUnknown.
	Name string
}

const usageText = `rigchat - streaming chat for OpenRouter models

Usage:
  rigchat [chat]                   Interactive chat (default)
  rigchat ask "question"           Ask a single question in a new chat
    -f, --file PATH                Attach a text file
    -s, --session ID               Continue an existing chat instead
  rigchat sessions [list]          List saved chats
  rigchat sessions show <id>       Print a chat transcript
  rigchat sessions delete <id>     Delete a chat
  rigchat export <id>              Export a chat
    --format md|json               Export format (default: md)
    --out DIR                      Output directory (default: .)
    --open                         Open the file after exporting
  rigchat improve "prompt"         Rewrite a prompt to be clearer
  rigchat stats                    Chat statistics
  rigchat config [show]            Show configuration (secrets redacted)
  rigchat config path              Print the config file path
  rigchat config init              Write a default config file
  rigchat config get <key>         Print one setting, e.g. cloud.model
  rigchat config set <key> <value> Change one setting
  rigchat version                  Version information

Global flags:
  -m, --model ID        Model id or alias (sonnet, gpt4, llama, ...)
  --metrics-addr ADDR   Serve Prometheus metrics on ADDR at /metrics
  --no-markdown         Print replies as plain text
  --json                JSON output (one-shot commands)
  -q, --quiet           Minimal output
  -v, --verbose         Debug logging

Chat ids can be abbreviated to a unique prefix or given as the number
shown by "rigchat sessions".

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses command-line arguments, excluding the program name.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]

	switch cmd {
	case "chat":
		return CmdChat, parsed

	case "ask", "a":
		p := NewArgParser(remaining)
		parsed.File = p.FlagOrDefault("file", p.Flag("f"))
		parsed.SessionID = p.FlagOrDefault("session", p.Flag("s"))
		parsed.Query = JoinPositionalArgs(p, 0)
		return CmdAsk, parsed

	case "sessions", "session", "ls":
		p := NewArgParser(remaining)
		parsed.Subcommand = strings.ToLower(p.Subcommand())
		parsed.SessionID = p.Positional(1)
		return CmdSessions, parsed

	case "export":
		p := NewArgParser(remaining, "open")
		parsed.SessionID = p.Subcommand()
		parsed.Format = strings.ToLower(p.FlagOrDefault("format", "md"))
		parsed.OutDir = p.FlagOrDefault("out", p.FlagOrDefault("o", "."))
		parsed.Open = p.BoolFlag("open")
		return CmdExport, parsed

	case "improve":
		parsed.Query = strings.Join(remaining, " ")
		return CmdImprove, parsed

	case "stats":
		return CmdStats, parsed

	case "config":
		if len(remaining) > 0 {
			parsed.Subcommand = strings.ToLower(remaining[0])
		}
		if len(remaining) > 1 {
			parsed.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			parsed.ConfigVal = strings.Join(remaining[2:], " ")
		}
		return CmdConfig, parsed

	case "version":
		return CmdVersion, parsed

	case "help":
		return CmdHelp, parsed

	default:
		parsed.Name = cmd
		return CmdUnknown, parsed
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Global flags may appear anywhere on the line.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "--no-markdown":
			parsed.NoMarkdown = true
		case "--version":
			remaining = append(remaining, "version")
		case "-h", "--help":
			remaining = append(remaining, "help")
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		case "--metrics-addr":
			if i+1 < len(args) {
				i++
				parsed.MetricsAddr = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--metrics-addr="):
				parsed.MetricsAddr = strings.TrimPrefix(arg, "--metrics-addr=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsed
}
