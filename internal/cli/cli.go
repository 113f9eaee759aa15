// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version information, synced from main at startup.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is the top-level command to execute.
type Command int

const (
	CmdServe Command = iota
	CmdChat
	CmdVersion
	CmdHelp
)

var commandNames = [...]string{
	CmdServe:   "serve",
	CmdChat:    "chat",
	CmdVersion: "version",
	CmdHelp:    "help",
}

// String returns the command word.
func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandNames[c]
}

// Args holds parsed command-line arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Quiet      bool

	// serve
	Addr string

	// chat
	Model  string
	Prompt string

	// Unknown is set when the command word was not recognized.
	Unknown string

	// Raw holds the arguments after the command word.
	Raw []string
}

var boolFlagNames = []string{"q", "quiet", "h", "help", "v", "version"}

const usageText = `chatstream - streaming chat assistant for OpenAI-compatible models

Usage:
  chatstream [serve]            Start the browser UI (default)
  chatstream chat               Interactive terminal chat
  chatstream version            Show version information
  chatstream help               Show this help

Flags:
  -c, --config PATH   Config file (default ~/.chatstream/config.toml)
  -a, --addr ADDR     Listen address for serve (default 127.0.0.1:7860)
  -m, --model NAME    Model for chat (overrides config)
  -p, --prompt NAME   Persona for chat, e.g. "Code Expert"
  -q, --quiet         Skip the chat banner

Environment:
  OPENAI_API_KEY      Credential bound to new sessions
  OPENAI_BASE_URL     Completion endpoint
  CHATSTREAM_*        Overrides for model, temperature, max_tokens, addr,
                      store, redis_url and export_dir

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "chatstream version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses argv (without the program name) into a command and its args.
// An empty command line means serve.
func Parse(argv []string) (Command, Args) {
	p := NewArgParser(argv, boolFlagNames...)

	args := Args{
		ConfigPath: p.Flag("config", "c"),
		Addr:       p.Flag("addr", "a"),
		Model:      p.Flag("model", "m"),
		Prompt:     p.Flag("prompt", "p"),
		Quiet:      p.BoolFlag("quiet", "q"),
		Raw:        p.PositionalFrom(1),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args
	}
	if p.BoolFlag("version", "v") {
		return CmdVersion, args
	}

	switch cmd := strings.ToLower(p.Subcommand()); cmd {
	case "", "serve", "server":
		return CmdServe, args
	case "chat":
		return CmdChat, args
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		args.Unknown = cmd
		return CmdHelp, args
	}
}
