// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "github.com/jeranaias/chatstream/internal/model"

// MaxHistory is the retained history size: one system message plus 40
// user/assistant entries.
const MaxHistory = 41

// History is the bounded context log. When non-empty, element 0 is the
// system message. History is not safe for concurrent use on its own; State
// guards it.
type History struct {
	msgs []model.Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// AppendTurn records a finished turn. An empty history, or one started
// under a different system prompt, is reset to the new system message first.
func (h *History) AppendTurn(userMsg, assistantMsg, systemMsg string) {
	if len(h.msgs) == 0 || h.msgs[0].Content != systemMsg {
		h.msgs = []model.Message{model.NewSystemMessage(systemMsg)}
	}
	h.msgs = append(h.msgs, model.NewUserMessage(userMsg), model.NewAssistantMessage(assistantMsg))
	h.trim()
}

// trim keeps element 0 plus the most recent MaxHistory-1 entries.
func (h *History) trim() {
	if len(h.msgs) <= MaxHistory {
		return
	}
	kept := make([]model.Message, 0, MaxHistory)
	kept = append(kept, h.msgs[0])
	kept = append(kept, h.msgs[len(h.msgs)-(MaxHistory-1):]...)
	h.msgs = kept
}

// Len returns the number of retained messages.
func (h *History) Len() int {
	return len(h.msgs)
}

// Messages returns a copy of the retained messages.
func (h *History) Messages() []model.Message {
	return model.CloneMessages(h.msgs)
}

// SystemPrompt returns the content of element 0.
func (h *History) SystemPrompt() (string, bool) {
	if len(h.msgs) == 0 {
		return "", false
	}
	return h.msgs[0].Content, true
}

// Turns returns the entries after the system message.
func (h *History) Turns() []model.Message {
	if len(h.msgs) <= 1 {
		return []model.Message{}
	}
	return model.CloneMessages(h.msgs[1:])
}

// Reset empties the history.
func (h *History) Reset() {
	h.msgs = nil
}

// restore replaces the contents, enforcing the size bound.
func (h *History) restore(msgs []model.Message) {
	h.msgs = model.CloneMessages(msgs)
	h.trim()
}
