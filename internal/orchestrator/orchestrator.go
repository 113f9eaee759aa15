// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/cloud"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/prompt"
	"github.com/jeranaias/chatstream/internal/session"
)

// Fixed transcript notices.
const (
	NoticeMissingCredential = "🔑 Please provide your OpenAI API key to start the conversation."
	NoticeEmptyInput        = "⚠️ Please enter a message to continue our conversation."
	Placeholder             = "🤔 Thinking..."
	FailurePrefix           = "❌ Error: "
)

// =============================================================================
// TURN STATES
// =============================================================================

// TurnState is where a turn is, or where it ended.
type TurnState int

const (
	Idle TurnState = iota
	AwaitingCredential
	AwaitingInput
	Streaming
	Committed
	Failed
	Cancelled
)

var turnStateNames = [...]string{
	Idle:               "idle",
	AwaitingCredential: "awaiting_credential",
	AwaitingInput:      "awaiting_input",
	Streaming:          "streaming",
	Committed:          "committed",
	Failed:             "failed",
	Cancelled:          "cancelled",
}

// String returns the snake_case name used in logs and API responses.
func (s TurnState) String() string {
	if s < 0 || int(s) >= len(turnStateNames) {
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
	return turnStateNames[s]
}

// MarshalText encodes the state by name.
func (s TurnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// =============================================================================
// SUBMISSION AND RESULT
// =============================================================================

// Submission carries the inputs of one submit event.
type Submission struct {
	Message string

	// Credential is the credential field. Nil leaves the bound credential
	// untouched; an empty string clears it.
	Credential *string

	// Zero values keep the session's current setting.
	Model       string
	Temperature float64
	MaxTokens   int

	// PromptChoice is a persona label; empty keeps the current persona.
	PromptChoice string
	CustomPrompt string
}

// Observer receives every transcript change of a turn.
type Observer func(transcript []model.Message)

// Result is the outcome of a turn.
type Result struct {
	State      TurnState
	Transcript []model.Message
	// Reply is the committed assistant text or the failure description.
	Reply string
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Saver persists a session after it changes.
type Saver func(ctx context.Context, st *session.State) error

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSaver persists the session after each committed or cleared turn.
func WithSaver(fn Saver) Option {
	return func(o *Orchestrator) {
		o.save = fn
	}
}

// Orchestrator runs turns. It holds no per-session state.
type Orchestrator struct {
	save Saver
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit processes exactly one user message. The only error returned is
// session.ErrTurnInProgress; every other failure ends up in the transcript.
func (o *Orchestrator) Submit(ctx context.Context, st *session.State, sub Submission, observe Observer) (Result, error) {
	release, err := st.BeginTurn()
	if err != nil {
		return Result{State: Idle, Transcript: st.Transcript()}, err
	}
	defer release()

	if observe == nil {
		observe = func([]model.Message) {}
	}

	if sub.Credential != nil {
		st.SetCredential(*sub.Credential)
	}
	client := st.Client()
	if client == nil {
		t := st.AppendTranscript(model.NewUserMessage(sub.Message), model.NewAssistantMessage(NoticeMissingCredential))
		observe(t)
		log.Printf("TURN_REJECTED | session=%s state=%s", st.ID(), AwaitingCredential)
		return Result{State: AwaitingCredential, Transcript: t, Reply: NoticeMissingCredential}, nil
	}

	params := applyParams(st.Params(), sub)
	st.SetParams(params)
	params = st.Params()

	systemPrompt := st.SystemPrompt()
	if sub.PromptChoice != "" {
		systemPrompt = st.SetSelection(prompt.Select(sub.PromptChoice, sub.CustomPrompt))
	}

	if strings.TrimSpace(sub.Message) == "" {
		t := st.AppendTranscript(model.NewUserMessage(sub.Message), model.NewAssistantMessage(NoticeEmptyInput))
		observe(t)
		log.Printf("TURN_REJECTED | session=%s state=%s", st.ID(), AwaitingInput)
		return Result{State: AwaitingInput, Transcript: t, Reply: NoticeEmptyInput}, nil
	}

	return o.stream(ctx, st, client, params, systemPrompt, sub.Message, observe), nil
}

func (o *Orchestrator) stream(ctx context.Context, st *session.State, client cloud.Streamer,
	params model.Params, systemPrompt, message string, observe Observer) Result {

	req := cloud.NewRequest(params, st.RequestMessages(systemPrompt, message))
	observe(st.AppendTranscript(model.NewUserMessage(message), model.NewAssistantMessage(Placeholder)))

	start := time.Now()
	log.Printf("TURN_START | session=%s model=%s context=%d", st.ID(), params.Model, len(req.Messages))

	var final, failure string
	var failed bool
	for partial, err := range cloud.Events(ctx, client, req) {
		if err != nil {
			failure, failed = cloud.FailureDescription(err), true
			break
		}
		final = partial
		observe(st.ReplaceLast(final))
	}
	if !failed && ctx.Err() != nil {
		failure, failed = cloud.ErrCancelled.Error(), true
	}

	if failed {
		endState := Failed
		if errors.Is(ctx.Err(), context.Canceled) {
			endState = Cancelled
		}
		t := st.ReplaceLast(FailurePrefix + failure)
		observe(t)
		log.Printf("TURN_%s | session=%s model=%s duration=%v error=%s",
			strings.ToUpper(endState.String()), st.ID(), params.Model, time.Since(start).Round(time.Millisecond), failure)
		return Result{State: endState, Transcript: t, Reply: failure}
	}

	if final == "" {
		observe(st.ReplaceLast(final))
	}
	st.AppendTurn(message, final, systemPrompt)
	o.persist(ctx, st)

	log.Printf("TURN_COMMITTED | session=%s model=%s chars=%d history=%d duration=%v",
		st.ID(), params.Model, len(final), st.HistoryLen(), time.Since(start).Round(time.Millisecond))
	return Result{State: Committed, Transcript: st.Transcript(), Reply: final}
}

// Clear empties the transcript and history of a session.
func (o *Orchestrator) Clear(ctx context.Context, st *session.State) error {
	release, err := st.BeginTurn()
	if err != nil {
		return err
	}
	defer release()

	st.Clear()
	o.persist(ctx, st)
	log.Printf("SESSION_CLEARED | session=%s", st.ID())
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, st *session.State) {
	if o.save == nil {
		return
	}
	if err := o.save(context.WithoutCancel(ctx), st); err != nil {
		log.Printf("SESSION_SAVE_FAILED | session=%s error=%v", st.ID(), err)
	}
}

// applyParams overlays the non-zero submission fields on current.
func applyParams(current model.Params, sub Submission) model.Params {
	p := current
	if sub.Model != "" {
		if m, err := model.ParseChatModel(sub.Model); err == nil {
			p.Model = m
		} else {
			log.Printf("TURN_PARAM_IGNORED | field=model value=%q", sub.Model)
		}
	}
	if sub.Temperature != 0 {
		p.Temperature = sub.Temperature
	}
	if sub.MaxTokens != 0 {
		p.MaxTokens = sub.MaxTokens
	}
	return p.Clamp()
}

// =============================================================================
// STATUS
// =============================================================================

// StatusLine renders the status bar for a session.
func StatusLine(st *session.State, now time.Time) string {
	return fmt.Sprintf("🟢 **Active** | Model: %s | Messages: %d | Time: %s",
		st.Params().Model, st.HistoryLen(), now.Format("15:04:05"))
}
