// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"testing"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// APPEND TURN TESTS
// =============================================================================

func TestHistory_FirstTurnSeedsSystem(t *testing.T) {
	h := NewHistory()
	h.AppendTurn("Write a haiku about rain", "Soft rain falls", "creative")

	want := []model.Message{
		model.NewSystemMessage("creative"),
		model.NewUserMessage("Write a haiku about rain"),
		model.NewAssistantMessage("Soft rain falls"),
	}
	got := h.Messages()
	if len(got) != len(want) {
		t.Fatalf("Messages() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Messages()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHistory_SystemChangeResets(t *testing.T) {
	h := NewHistory()
	h.AppendTurn("u1", "a1", "old")
	h.AppendTurn("u2", "a2", "old")
	h.AppendTurn("u3", "a3", "new")

	got := h.Messages()
	if len(got) != 3 {
		t.Fatalf("after prompt change len = %d, want 3", len(got))
	}
	if got[0] != model.NewSystemMessage("new") {
		t.Errorf("element 0 = %+v, want new system message", got[0])
	}
	if got[1].Content != "u3" || got[2].Content != "a3" {
		t.Errorf("turn = %+v %+v, want u3/a3", got[1], got[2])
	}
}

func TestHistory_TrimKeepsLatestTwentyPairs(t *testing.T) {
	h := NewHistory()
	for i := 1; i <= 25; i++ {
		h.AppendTurn(fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i), "sys")
	}

	got := h.Messages()
	if len(got) != MaxHistory {
		t.Fatalf("len = %d, want %d", len(got), MaxHistory)
	}
	if got[0] != model.NewSystemMessage("sys") {
		t.Errorf("element 0 = %+v, want system", got[0])
	}
	// Pairs 6..25 survive; 1..5 are dropped.
	for i := 0; i < 20; i++ {
		u, a := got[1+2*i], got[2+2*i]
		if u.Role != model.RoleUser || u.Content != fmt.Sprintf("u%d", i+6) {
			t.Errorf("entry %d = %+v, want user u%d", 1+2*i, u, i+6)
		}
		if a.Role != model.RoleAssistant || a.Content != fmt.Sprintf("a%d", i+6) {
			t.Errorf("entry %d = %+v, want assistant a%d", 2+2*i, a, i+6)
		}
	}
}

func TestHistory_InvariantsHoldForAnySequence(t *testing.T) {
	h := NewHistory()
	prompts := []string{"a", "a", "b", "b", "b", "a"}
	for i := 0; i < 300; i++ {
		sys := prompts[i%len(prompts)]
		if i%7 == 0 {
			sys = "a"
		}
		h.AppendTurn("u", "r", sys)

		if h.Len() > MaxHistory {
			t.Fatalf("turn %d: len = %d exceeds %d", i, h.Len(), MaxHistory)
		}
		msgs := h.Messages()
		if msgs[0].Role != model.RoleSystem || msgs[0].Content != sys {
			t.Fatalf("turn %d: element 0 = %+v, want system %q", i, msgs[0], sys)
		}
		for j := 1; j < len(msgs); j++ {
			want := model.RoleUser
			if j%2 == 0 {
				want = model.RoleAssistant
			}
			if msgs[j].Role != want {
				t.Fatalf("turn %d: entry %d role = %s, want %s", i, j, msgs[j].Role, want)
			}
		}
	}
}

func TestHistory_MessagesIsCopy(t *testing.T) {
	h := NewHistory()
	h.AppendTurn("u", "a", "s")
	msgs := h.Messages()
	msgs[1].Content = "mutated"
	if h.Messages()[1].Content != "u" {
		t.Error("Messages() exposes internal storage")
	}
}

func TestHistory_ResetAndSystemPrompt(t *testing.T) {
	h := NewHistory()
	if _, ok := h.SystemPrompt(); ok {
		t.Error("empty history should have no system prompt")
	}
	if len(h.Turns()) != 0 {
		t.Error("empty history should have no turns")
	}
	h.AppendTurn("u", "a", "s")
	if sp, ok := h.SystemPrompt(); !ok || sp != "s" {
		t.Errorf("SystemPrompt() = %q, %v", sp, ok)
	}
	if got := len(h.Turns()); got != 2 {
		t.Errorf("Turns() len = %d, want 2", got)
	}
	h.Reset()
	if h.Len() != 0 {
		t.Errorf("Len() after Reset = %d", h.Len())
	}
}

func TestHistory_RestoreTrims(t *testing.T) {
	msgs := []model.Message{model.NewSystemMessage("s")}
	for i := 0; i < 30; i++ {
		msgs = append(msgs, model.NewUserMessage("u"), model.NewAssistantMessage("a"))
	}
	h := NewHistory()
	h.restore(msgs)
	if h.Len() != MaxHistory {
		t.Errorf("restore len = %d, want %d", h.Len(), MaxHistory)
	}
}
