// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/prompt"
)

// ErrUnknownCommand is returned for slash commands that do not exist.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// SLASH COMMAND PARSING
// =============================================================================

// SlashCommand is one parsed "/name args" line.
type SlashCommand struct {
	Name string
	Arg  string
}

// ParseSlash splits "/Name rest of line" into a lower-cased name and the
// trimmed remainder.
func ParseSlash(input string) SlashCommand {
	input = strings.TrimSpace(input)
	name, arg, _ := strings.Cut(input, " ")
	return SlashCommand{
		Name: strings.ToLower(name),
		Arg:  strings.TrimSpace(arg),
	}
}

type slashCommand struct {
	names []string
	usage string
	desc  string
}

var slashCommands = []slashCommand{
	{[]string{"/help", "/h", "/?"}, "/help, /h", "Show this help"},
	{[]string{"/clear", "/c"}, "/clear, /c", "Clear conversation and history"},
	{[]string{"/export"}, "/export [json|md]", "Export the conversation"},
	{[]string{"/model", "/m"}, "/model [name]", "Show or switch model"},
	{[]string{"/models"}, "/models", "List available models"},
	{[]string{"/prompt", "/persona"}, "/prompt [persona]", "Show or switch persona"},
	{[]string{"/custom"}, "/custom [text]", "Use a custom system prompt"},
	{[]string{"/temp", "/temperature"}, "/temp <value>", "Set temperature (0.1 - 2.0)"},
	{[]string{"/tokens", "/max_tokens"}, "/tokens <n>", "Set max tokens (100 - 4000)"},
	{[]string{"/history"}, "/history", "Show retained context"},
	{[]string{"/status", "/s"}, "/status, /s", "Show session status"},
	{[]string{"/quit", "/q", "/exit"}, "/quit, /q", "Exit chat"},
}

// canonical maps aliases to the first listed name.
func canonical(name string) string {
	for _, sc := range slashCommands {
		for _, n := range sc.names {
			if n == name {
				return sc.names[0]
			}
		}
	}
	return ""
}

// =============================================================================
// SLASH COMMAND EXECUTION
// =============================================================================

// runSlash executes cmd. It returns false when the chat should end.
func (c *Chat) runSlash(ctx context.Context, cmd SlashCommand) (bool, error) {
	switch canonical(cmd.Name) {
	case "/help":
		c.printHelp()
	case "/clear":
		if err := c.orch.Clear(ctx, c.state); err != nil {
			return true, err
		}
		fmt.Fprintln(c.out, commandStyle.Render("[Conversation cleared]"))
	case "/export":
		return true, c.exportConversation(cmd.Arg)
	case "/model":
		return true, c.switchModel(cmd.Arg)
	case "/models":
		c.printModels()
	case "/prompt":
		return true, c.switchPersona(cmd.Arg)
	case "/custom":
		c.state.SetSelection(prompt.Select(prompt.CustomChoice, cmd.Arg))
		fmt.Fprintf(c.out, "%s %s\n", commandStyle.Render("[Persona]"), c.state.Selection().Label())
	case "/temp":
		return true, c.setTemperature(cmd.Arg)
	case "/tokens":
		return true, c.setMaxTokens(cmd.Arg)
	case "/history":
		c.printHistory()
	case "/status":
		c.printStatus()
	case "/quit":
		return false, nil
	default:
		return true, fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, cmd.Name)
	}
	return true, nil
}

func (c *Chat) exportConversation(format string) error {
	e, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	w := c.exports.WithExporter(e)
	name, ok, err := w.Export(c.state.Transcript(), c.state.Params().Model, c.state.SystemPrompt())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, warningStyle.Render("[Nothing to export]"))
		return nil
	}
	fmt.Fprintf(c.out, "%s %s\n", commandStyle.Render("[Exported]"), filepath.Join(w.OutputDir, name))
	return nil
}

func (c *Chat) switchModel(name string) error {
	p := c.state.Params()
	if name == "" {
		fmt.Fprintf(c.out, "%s %s\n", infoStyle.Render("Current model:"), commandStyle.Render(string(p.Model)))
		return nil
	}
	m, err := model.ParseChatModel(name)
	if err != nil {
		return fmt.Errorf("%w (see /models)", err)
	}
	p.Model = m
	c.state.SetParams(p)
	fmt.Fprintf(c.out, "%s %s\n", commandStyle.Render("[Model]"), m)
	return nil
}

func (c *Chat) switchPersona(name string) error {
	if name == "" {
		c.printPersonas()
		return nil
	}
	p, err := matchPersona(name)
	if err != nil {
		return err
	}
	c.state.SetSelection(prompt.Selection{Persona: p})
	fmt.Fprintf(c.out, "%s %s\n", commandStyle.Render("[Persona]"), c.state.Selection().Label())
	return nil
}

func (c *Chat) setTemperature(arg string) error {
	v, err := ParseFloatWithValidation(arg, "temperature")
	if err != nil {
		return err
	}
	p := c.state.Params()
	p.Temperature = v
	if err := p.Validate(); err != nil {
		return err
	}
	c.state.SetParams(p)
	fmt.Fprintf(c.out, "%s %.1f\n", commandStyle.Render("[Temperature]"), c.state.Params().Temperature)
	return nil
}

func (c *Chat) setMaxTokens(arg string) error {
	v, err := ParseIntWithValidation(arg, "max tokens")
	if err != nil {
		return err
	}
	p := c.state.Params()
	p.MaxTokens = v
	if err := p.Validate(); err != nil {
		return err
	}
	c.state.SetParams(p)
	fmt.Fprintf(c.out, "%s %d\n", commandStyle.Render("[Max tokens]"), c.state.Params().MaxTokens)
	return nil
}

// matchPersona accepts a picker label in any case, or its slug form
// ("code-expert", "code_expert").
func matchPersona(name string) (prompt.Persona, error) {
	want := normalizePersona(name)
	for _, p := range prompt.Personas() {
		if normalizePersona(p.String()) == want {
			return p, nil
		}
	}
	return prompt.DefaultAssistant, fmt.Errorf("%w: %q (try /prompt)", prompt.ErrUnknownPersona, name)
}

func normalizePersona(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", "&", "and").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
