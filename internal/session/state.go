// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatstream/internal/cloud"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/prompt"
)

// ClientFactory binds a credential to a completion client.
type ClientFactory func(credential string) (cloud.Streamer, error)

// =============================================================================
// SESSION STATE
// =============================================================================

// State is everything one conversation owns.
type State struct {
	mu   sync.Mutex
	turn sync.Mutex

	id         string
	createdAt  time.Time
	lastActive time.Time
	version    int64

	credential string
	client     cloud.Streamer
	factory    ClientFactory

	params       model.Params
	selection    prompt.Selection
	systemPrompt string

	history    *History
	transcript []model.Message
}

// NewState creates a session with default parameters and the Default
// Assistant persona. factory may be nil, in which case no credential can bind.
func NewState(id string, params model.Params, factory ClientFactory) *State {
	now := time.Now()
	sel := prompt.Selection{Persona: prompt.DefaultAssistant}
	return &State{
		id:           id,
		createdAt:    now,
		lastActive:   now,
		factory:      factory,
		params:       params.Clamp(),
		selection:    sel,
		systemPrompt: sel.Text(),
		history:      NewHistory(),
		transcript:   []model.Message{},
	}
}

// ID returns the session id.
func (s *State) ID() string {
	return s.id
}

// CreatedAt returns when the session started.
func (s *State) CreatedAt() time.Time {
	return s.createdAt
}

// LastActive returns the time of the last mutation.
func (s *State) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *State) touch() {
	s.lastActive = time.Now()
}

// =============================================================================
// CREDENTIAL
// =============================================================================

// SetCredential applies the credential field of a submission. A non-empty
// value that differs from the stored one rebinds the client; an empty value
// clears a previously stored credential and its client.
func (s *State) SetCredential(value string) {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case value != "" && value != s.credential:
		s.credential = value
		s.client = nil
		if s.factory == nil {
			log.Printf("CREDENTIAL_UNBOUND | session=%s reason=no_factory", s.id)
			break
		}
		client, err := s.factory(value)
		if err != nil {
			log.Printf("CREDENTIAL_UNBOUND | session=%s key=%s error=%v", s.id, cloud.MaskKey(value), err)
			break
		}
		s.client = client
		log.Printf("CREDENTIAL_BOUND | session=%s key=%s", s.id, cloud.MaskKey(value))
	case value == "" && s.credential != "":
		s.credential = ""
		s.client = nil
		log.Printf("CREDENTIAL_CLEARED | session=%s", s.id)
	}
	s.touch()
}

// Client returns the bound completion client, or nil.
func (s *State) Client() cloud.Streamer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// HasCredential reports whether a credential is stored.
func (s *State) HasCredential() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential != ""
}

// =============================================================================
// PARAMETERS AND PERSONA
// =============================================================================

// Params returns the current generation parameters.
func (s *State) Params() model.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces the generation parameters wholesale. Values are clamped.
func (s *State) SetParams(p model.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p.Clamp()
	s.touch()
}

// Selection returns the active persona selection.
func (s *State) Selection() prompt.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// SetSelection activates a persona and returns the resolved system prompt.
func (s *State) SetSelection(sel prompt.Selection) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = sel
	s.systemPrompt = sel.Text()
	s.touch()
	return s.systemPrompt
}

// SystemPrompt returns the system prompt resolved by the last selection.
func (s *State) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns a copy of the bounded context log.
func (s *State) History() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Messages()
}

// HistoryLen returns the number of retained history messages.
func (s *State) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// AppendTurn commits a finished turn to the history.
func (s *State) AppendTurn(userMsg, assistantMsg, systemMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.AppendTurn(userMsg, assistantMsg, systemMsg)
	s.touch()
}

// RequestMessages builds the context for a new user message: the system
// prompt, the retained turns recorded under that same prompt, then userMsg.
func (s *State) RequestMessages(systemMsg, userMsg string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := []model.Message{model.NewSystemMessage(systemMsg)}
	if stored, ok := s.history.SystemPrompt(); ok && stored == systemMsg {
		msgs = append(msgs, s.history.Turns()...)
	}
	return append(msgs, model.NewUserMessage(userMsg))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript returns a copy of the visible chat log.
func (s *State) Transcript() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneMessages(s.transcript)
}

// AppendTranscript adds entries and returns the resulting transcript.
func (s *State) AppendTranscript(msgs ...model.Message) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msgs...)
	s.touch()
	return model.CloneMessages(s.transcript)
}

// ReplaceLast overwrites the content of the last transcript entry and
// returns the resulting transcript.
func (s *State) ReplaceLast(content string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.transcript); n > 0 {
		s.transcript[n-1].Content = content
	}
	s.touch()
	return model.CloneMessages(s.transcript)
}

// Clear empties both the transcript and the history.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = []model.Message{}
	s.history.Reset()
	s.touch()
}

// =============================================================================
// TURN GUARD
// =============================================================================

// BeginTurn acquires the per-session turn guard without blocking. The
// returned function releases it.
func (s *State) BeginTurn() (func(), error) {
	if !s.turn.TryLock() {
		return nil, ErrTurnInProgress
	}
	var once sync.Once
	return func() { once.Do(s.turn.Unlock) }, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is the storable form of a State. It never carries the credential.
type Snapshot struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int64           `json:"version"`
	Params       model.Params    `json:"params"`
	Persona      string          `json:"persona"`
	CustomPrompt string          `json:"custom_prompt,omitempty"`
	SystemPrompt string          `json:"system_prompt"`
	History      []model.Message `json:"history"`
	Transcript   []model.Message `json:"transcript"`
}

// Snapshot captures the current state.
func (s *State) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.lastActive,
		Version:      s.version,
		Params:       s.params,
		Persona:      s.selection.Persona.String(),
		CustomPrompt: s.selection.CustomText,
		SystemPrompt: s.systemPrompt,
		History:      s.history.Messages(),
		Transcript:   model.CloneMessages(s.transcript),
	}
}

// setVersion records the version assigned by the store.
func (s *State) setVersion(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// restoreState rebuilds a State from a snapshot.
func restoreState(snap *Snapshot, factory ClientFactory) *State {
	st := NewState(snap.ID, snap.Params, factory)
	st.createdAt = snap.CreatedAt
	st.lastActive = time.Now()
	st.version = snap.Version
	st.selection = prompt.Select(snap.Persona, snap.CustomPrompt)
	st.systemPrompt = snap.SystemPrompt
	if st.systemPrompt == "" {
		st.systemPrompt = st.selection.Text()
	}
	st.history.restore(snap.History)
	st.transcript = model.CloneMessages(snap.Transcript)
	return st
}
