// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for the terminal.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   chatstream chat                        Start chat with configured defaults
//   chatstream chat --model gpt-4o         Use a specific model
//   chatstream chat -p "Code Expert"       Start with a persona
//
// Interactive Commands (during chat):
//   /help, /h              Show available commands
//   /clear, /c             Clear conversation and history
//   /export [json|md]      Write the conversation to the export directory
//   /model [name]          Show or switch model
//   /models                List available models
//   /prompt [persona]      Show or switch persona
//   /custom [text]         Use custom system prompt text
//   /temp <value>          Set temperature (0.1 - 2.0)
//   /tokens <n>            Set max tokens (100 - 4000)
//   /history               Show retained context
//   /status, /s            Show session status
//   /quit, /q              Exit chat
//   Ctrl+C                 Cancel current generation
//   Ctrl+D                 Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/orchestrator"
	"github.com/jeranaias/chatstream/internal/prompt"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/tokens"
	"github.com/jeranaias/chatstream/internal/util"
)

// historyFileName is the line-editor history file inside the config dir.
const historyFileName = "chat_history"

// previewWidth bounds /history lines.
const previewWidth = 72

// exitCodeTerminated is the shell convention for death by SIGTERM.
const exitCodeTerminated = 128 + int(syscall.SIGTERM)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
	closeOnce   sync.Once
}

// NewChatCLI creates the line editor and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyFile = filepath.Join(dir, historyFileName)
	}
	c.LoadHistory()
	return c
}

// LoadHistory reads saved input history, if any.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.Open(c.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.ReadHistory(f)
}

// ReadInput reads one line. Non-blank input is added to history.
func (c *ChatCLI) ReadInput(promptText string) (string, error) {
	input, err := c.line.Prompt(promptText)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history owner-readable only.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal. Later calls do nothing.
func (c *ChatCLI) Close() {
	c.closeOnce.Do(func() {
		c.SaveHistory()
		c.line.Close()
	})
}

// =============================================================================
// CHAT
// =============================================================================

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// Chat drives one terminal session through the orchestrator.
type Chat struct {
	state   *session.State
	orch    *orchestrator.Orchestrator
	exports *export.Writer

	out    io.Writer
	errOut io.Writer
	render Renderer
	// live shows the placeholder and erases it in place.
	live  bool
	quiet bool
	now   func() time.Time
	exit  func(code int)

	started time.Time
	turns   int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// ChatOption configures a Chat.
type ChatOption func(*Chat)

// WithOutput sets the writers for replies and diagnostics.
func WithOutput(out, errOut io.Writer) ChatOption {
	return func(c *Chat) {
		c.out = out
		c.errOut = errOut
	}
}

// WithRenderer renders committed replies as markdown instead of streaming them.
func WithRenderer(r Renderer) ChatOption {
	return func(c *Chat) {
		c.render = r
	}
}

// WithLiveStatus shows the thinking placeholder and erases it once text arrives.
func WithLiveStatus(live bool) ChatOption {
	return func(c *Chat) {
		c.live = live
	}
}

// WithExportWriter sets where /export writes.
func WithExportWriter(w *export.Writer) ChatOption {
	return func(c *Chat) {
		c.exports = w
	}
}

// WithQuiet suppresses the banner and per-turn stats.
func WithQuiet(quiet bool) ChatOption {
	return func(c *Chat) {
		c.quiet = quiet
	}
}

// NewChat creates a Chat over st.
func NewChat(st *session.State, orch *orchestrator.Orchestrator, opts ...ChatOption) *Chat {
	c := &Chat{
		state:   st,
		orch:    orch,
		exports: export.NewWriter("."),
		out:     os.Stdout,
		errOut:  os.Stderr,
		now:     time.Now,
		exit:    os.Exit,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// State returns the session the chat drives.
func (c *Chat) State() *session.State {
	return c.state
}

// Handle processes one input line. It returns false when the user quits.
func (c *Chat) Handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return true
	}

	if strings.HasPrefix(input, "/") {
		cont, err := c.runSlash(ctx, ParseSlash(input))
		if err != nil {
			fmt.Fprintf(c.errOut, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
		return cont
	}

	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return false
	}

	c.Send(ctx, input)
	return true
}

// Send runs one turn and prints the reply as it streams.
func (c *Chat) Send(ctx context.Context, message string) orchestrator.Result {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	start := c.now()
	printer := newStreamPrinter(c.out, c.live, c.render == nil)

	fmt.Fprintln(c.out)
	res, err := c.orch.Submit(ctx, c.state, orchestrator.Submission{Message: message}, printer.observe)
	if err != nil {
		printer.finish()
		fmt.Fprintf(c.errOut, "%s %v\n", errorStyle.Render("[Error]"), err)
		return res
	}

	if c.render != nil && res.State == orchestrator.Committed {
		printer.finish()
		fmt.Fprint(c.out, c.renderMarkdown(res.Reply))
	} else if c.render != nil {
		printer.finish()
		fmt.Fprint(c.out, lastContent(res.Transcript))
	}
	fmt.Fprint(c.out, "\n\n")

	switch res.State {
	case orchestrator.Committed:
		c.turns++
		if !c.quiet {
			fmt.Fprintf(c.errOut, "%s %s | %d history | %s\n",
				infoStyle.Render("[Stats]"),
				c.state.Params().Model,
				c.state.HistoryLen(),
				c.now().Sub(start).Round(time.Millisecond))
		}
	case orchestrator.Cancelled:
		fmt.Fprintln(c.errOut, warningStyle.Render("[Cancelled]"))
	}
	return res
}

// Cancel aborts the turn in progress, if any.
func (c *Chat) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

func (c *Chat) renderMarkdown(text string) string {
	out, err := c.render(text)
	if err != nil {
		return text
	}
	return out
}

func lastContent(transcript []model.Message) string {
	if len(transcript) == 0 {
		return ""
	}
	return transcript[len(transcript)-1].Content
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the growing assistant entry as it changes. Every
// observed value is cumulative, so only the unseen suffix is written.
type streamPrinter struct {
	w       io.Writer
	live    bool
	stream  bool
	printed string
	// pending is set while the placeholder is on screen.
	pending bool
}

func newStreamPrinter(w io.Writer, live, stream bool) *streamPrinter {
	return &streamPrinter{w: w, live: live, stream: stream}
}

func (p *streamPrinter) observe(transcript []model.Message) {
	if len(transcript) == 0 {
		return
	}
	last := transcript[len(transcript)-1]
	if last.Role != model.RoleAssistant {
		return
	}

	if last.Content == orchestrator.Placeholder {
		if p.live && !p.pending {
			io.WriteString(p.w, infoStyle.Render(orchestrator.Placeholder))
			p.pending = true
		}
		return
	}

	if !p.stream {
		return
	}
	p.clearPlaceholder()

	text := last.Content
	if strings.HasPrefix(text, p.printed) {
		io.WriteString(p.w, text[len(p.printed):])
	} else {
		io.WriteString(p.w, "\n"+text)
	}
	p.printed = text
}

// finish removes the placeholder when the reply is printed elsewhere.
func (p *streamPrinter) finish() {
	p.clearPlaceholder()
}

func (p *streamPrinter) clearPlaceholder() {
	if p.pending {
		io.WriteString(p.w, "\r\033[K")
		p.pending = false
	}
}

// =============================================================================
// RUN
// =============================================================================

// RunChat starts the interactive REPL with the configured defaults.
func RunChat(ctx context.Context, cfg *config.Config, factory session.ClientFactory, args Args) error {
	params := cfg.Generation.Params()
	if args.Model != "" {
		m, err := model.ParseChatModel(args.Model)
		if err != nil {
			return err
		}
		params.Model = m
	}

	st := session.NewState("cli", params, factory)
	st.SetCredential(cfg.Provider.APIKey)
	if args.Prompt != "" {
		p, err := matchPersona(args.Prompt)
		if err != nil {
			return err
		}
		st.SetSelection(prompt.Selection{Persona: p})
	}

	opts := []ChatOption{
		WithExportWriter(export.NewWriter(cfg.Export.OutputDir)),
		WithQuiet(args.Quiet),
		WithLiveStatus(IsStdoutTTY()),
	}
	if IsStdoutTTY() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()),
		)
		if err == nil {
			opts = append(opts, WithRenderer(r.Render))
		}
	}

	chat := NewChat(st, orchestrator.New(), opts...)
	return chat.Run(ctx, NewChatCLI())
}

// Run reads lines until /quit, EOF or ctx is done. SIGINT during a turn
// cancels that turn only. SIGTERM cancels the turn and exits the process.
func (c *Chat) Run(ctx context.Context, input *ChatCLI) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	defer input.Close()

	if !c.quiet {
		c.printWelcome()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go c.watchSignals(ctx, sigChan, func() {
		stop()
		// The prompt may stay blocked on stdin, so restore the terminal here.
		input.Close()
		c.exit(exitCodeTerminated)
	})

	for ctx.Err() == nil {
		line, err := input.ReadInput(promptStyle.Render("chat> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(c.out, infoStyle.Render("(Ctrl+D or /quit to exit)"))
				continue
			}
			// EOF (Ctrl+D) or a closed input.
			fmt.Fprintln(c.out)
			break
		}
		if !c.Handle(ctx, line) {
			break
		}
	}

	c.printExitSummary()
	return nil
}

// handleSignal cancels the turn in progress and reports whether sig ends
// the chat.
func (c *Chat) handleSignal(sig os.Signal) bool {
	c.Cancel()
	return sig == syscall.SIGTERM
}

// watchSignals handles sigs until ctx is done. terminate runs once, for the
// first signal that ends the chat.
func (c *Chat) watchSignals(ctx context.Context, sigs <-chan os.Signal, terminate func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if c.handleSignal(sig) {
				terminate()
				return
			}
		}
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

func (c *Chat) printWelcome() {
	p := c.state.Params()
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, welcomeStyle.Render("chatstream interactive chat"))
	fmt.Fprintln(c.out, renderSeparator(30))
	fmt.Fprintf(c.out, "%s %s\n", infoStyle.Render("Model:"), commandStyle.Render(string(p.Model)))
	fmt.Fprintf(c.out, "%s %s\n", infoStyle.Render("Persona:"), commandStyle.Render(c.state.Selection().Label()))
	if c.state.HasCredential() {
		fmt.Fprintf(c.out, "%s %s\n", infoStyle.Render("API key:"), commandStyle.Render("Configured"))
	} else {
		fmt.Fprintf(c.out, "%s %s\n", infoStyle.Render("API key:"), warningStyle.Render("Missing (set OPENAI_API_KEY)"))
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(c.out)
}

func (c *Chat) printStatus() {
	p := c.state.Params()
	history := c.state.History()

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Session Status"))
	fmt.Fprintln(c.out, strings.ReplaceAll(orchestrator.StatusLine(c.state, c.now()), "**", ""))
	fmt.Fprintln(c.out)
	rows := [][2]string{
		{"Model:", string(p.Model)},
		{"Temperature:", fmt.Sprintf("%.1f", p.Temperature)},
		{"Max tokens:", fmt.Sprintf("%d", p.MaxTokens)},
		{"Persona:", c.state.Selection().Label()},
		{"Context:", fmt.Sprintf("%d messages, ~%d tokens", len(history), tokens.Count(history))},
		{"Duration:", c.now().Sub(c.started).Round(time.Second).String()},
	}
	for _, r := range rows {
		fmt.Fprintf(c.out, "  %s %s\n", infoStyle.Render(fmt.Sprintf("%-13s", r[0])), r[1])
	}
	fmt.Fprintln(c.out)
}

func (c *Chat) printHistory() {
	history := c.state.History()
	if len(history) == 0 {
		fmt.Fprintln(c.out, infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Conversation Context"))
	for i, msg := range history {
		role := msg.Role.DisplayName()
		switch msg.Role {
		case model.RoleUser:
			role = userRoleStyle.Render(role)
		case model.RoleAssistant:
			role = assistantRoleStyle.Render(role)
		default:
			role = warningStyle.Render(role)
		}
		fmt.Fprintf(c.out, "  %d. %s: %s\n", i+1, role, util.Preview(msg.Content, previewWidth))
	}
	fmt.Fprintln(c.out)
}

func (c *Chat) printModels() {
	current := c.state.Params().Model
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Models"))
	for _, m := range model.ChatModels() {
		marker := "  "
		if m == current {
			marker = commandStyle.Render("* ")
		}
		fmt.Fprintf(c.out, "%s%-14s %s\n", marker, m, infoStyle.Render(util.Preview(m.Info(), previewWidth)))
	}
	fmt.Fprintln(c.out)
}

func (c *Chat) printPersonas() {
	current := c.state.Selection().Label()
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Personas"))
	for _, p := range prompt.Personas() {
		marker := "  "
		if p.String() == current {
			marker = commandStyle.Render("* ")
		}
		fmt.Fprintf(c.out, "%s%s\n", marker, p)
	}
	fmt.Fprintf(c.out, "  %s\n", infoStyle.Render("Use /custom <text> for your own system prompt"))
	fmt.Fprintln(c.out)
}

func (c *Chat) printHelp() {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Available Commands"))
	for _, sc := range slashCommands {
		fmt.Fprintf(c.out, "  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-20s", sc.usage)),
			infoStyle.Render(sc.desc))
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, infoStyle.Render("Tip: Ctrl+C cancels current generation, Ctrl+D exits"))
	fmt.Fprintln(c.out)
}

func (c *Chat) printExitSummary() {
	if c.turns == 0 {
		fmt.Fprintln(c.out, infoStyle.Render("Goodbye!"))
		return
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, renderHeader("Session Summary"))
	fmt.Fprintf(c.out, "  %s %d\n", infoStyle.Render("Turns:"), c.turns)
	fmt.Fprintf(c.out, "  %s %s\n", infoStyle.Render("Duration:"), c.now().Sub(c.started).Round(time.Second))
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, infoStyle.Render("Goodbye!"))
}
