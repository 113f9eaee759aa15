// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatstream/internal/cloud"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/prompt"
	"github.com/jeranaias/chatstream/internal/session"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type mockStreamer struct {
	mock.Mock
}

func (m *mockStreamer) Stream(ctx context.Context, req cloud.Request) iter.Seq[string] {
	args := m.Called(ctx, req)
	return args.Get(0).(iter.Seq[string])
}

func (m *mockStreamer) request(t *testing.T, i int) cloud.Request {
	t.Helper()
	require.Greater(t, len(m.Calls), i)
	return m.Calls[i].Arguments.Get(1).(cloud.Request)
}

func seqOf(items ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, s := range items {
			if !yield(s) {
				return
			}
		}
	}
}

func newSession(t *testing.T, streamer cloud.Streamer) *session.State {
	t.Helper()
	st := session.NewState("sess_test", model.DefaultParams(), func(string) (cloud.Streamer, error) {
		return streamer, nil
	})
	st.SetCredential("sk-test")
	return st
}

type recorder struct {
	mu        sync.Mutex
	snapshots [][]model.Message
}

func (r *recorder) observe(t []model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, t)
}

func (r *recorder) lastContents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.snapshots))
	for _, s := range r.snapshots {
		out = append(out, s[len(s)-1].Content)
	}
	return out
}

func ptr(s string) *string { return &s }

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestSubmit_HaikuScenario(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("Soft", "Soft rain", "Soft rain falls")).Once()
	st := newSession(t, m)
	rec := &recorder{}

	res, err := New().Submit(context.Background(), st, Submission{
		Message:      "Write a haiku about rain",
		PromptChoice: "Creative Writer",
	}, rec.observe)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.State)
	assert.Equal(t, "Soft rain falls", res.Reply)

	req := m.request(t, 0)
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, model.NewSystemMessage(prompt.CreativeWriter.Text()), req.Messages[0])
	assert.Equal(t, model.NewUserMessage("Write a haiku about rain"), req.Messages[len(req.Messages)-1])
	assert.Equal(t, model.DefaultChatModel, req.Model)

	// Placeholder first, then each partial in place.
	assert.Equal(t, []string{Placeholder, "Soft", "Soft rain", "Soft rain falls"}, rec.lastContents())
	for _, snap := range rec.snapshots {
		assert.Len(t, snap, 2, "partials update the last entry in place")
	}

	last := res.Transcript[len(res.Transcript)-1]
	assert.Equal(t, model.NewAssistantMessage("Soft rain falls"), last)

	assert.Equal(t, []model.Message{
		model.NewSystemMessage(prompt.CreativeWriter.Text()),
		model.NewUserMessage("Write a haiku about rain"),
		model.NewAssistantMessage("Soft rain falls"),
	}, st.History())
	m.AssertExpectations(t)
}

func TestSubmit_ProviderFailureLeavesHistory(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("ok")).Once()
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("Par", "Error: rate limited: slow down")).Once()
	st := newSession(t, m)
	orch := New()

	_, err := orch.Submit(context.Background(), st, Submission{Message: "first"}, nil)
	require.NoError(t, err)
	before := st.History()

	rec := &recorder{}
	res, err := orch.Submit(context.Background(), st, Submission{Message: "second"}, rec.observe)
	require.NoError(t, err)

	assert.Equal(t, Failed, res.State)
	assert.Equal(t, "rate limited: slow down", res.Reply)
	assert.Equal(t, before, st.History(), "failed turns are not committed")

	last := res.Transcript[len(res.Transcript)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, FailurePrefix+"rate limited: slow down", last.Content)
	assert.Equal(t, []string{Placeholder, "Par", FailurePrefix + "rate limited: slow down"}, rec.lastContents())
}

func TestSubmit_ReplyStartingWithErrorPrefix(t *testing.T) {
	reply := "Error: x is undefined means the variable was never declared."
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("Error", "Error: ", reply)).Once()
	st := newSession(t, m)

	res, err := New().Submit(context.Background(), st, Submission{Message: "what does this mean?"}, nil)
	require.NoError(t, err)

	assert.Equal(t, Committed, res.State)
	assert.Equal(t, reply, res.Reply)
	require.Equal(t, 3, st.HistoryLen())
	assert.Equal(t, reply, st.History()[2].Content)
}

func TestSubmit_BlankFailureTextFails(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("Par", cloud.ErrorPrefix)).Once()
	st := newSession(t, m)

	res, err := New().Submit(context.Background(), st, Submission{Message: "hi"}, nil)
	require.NoError(t, err)

	assert.Equal(t, Failed, res.State)
	assert.Equal(t, cloud.ErrUnknownFailure.Error(), res.Reply)
	assert.Equal(t, FailurePrefix+cloud.ErrUnknownFailure.Error(), res.Transcript[len(res.Transcript)-1].Content)
	assert.Equal(t, 0, st.HistoryLen())
}

// eventStreamer reports failures out of band like cloud.Client.
type eventStreamer struct {
	texts []string
	errs  []error
}

func (e *eventStreamer) Stream(ctx context.Context, req cloud.Request) iter.Seq[string] {
	return func(yield func(string) bool) {
		for text := range e.StreamEvents(ctx, req) {
			if !yield(text) {
				return
			}
		}
	}
}

func (e *eventStreamer) StreamEvents(_ context.Context, _ cloud.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, text := range e.texts {
			if !yield(text, e.errs[i]) {
				return
			}
		}
	}
}

func TestSubmit_OutOfBandFailures(t *testing.T) {
	t.Run("sentinel-looking first element is reply text", func(t *testing.T) {
		st := newSession(t, &eventStreamer{
			texts: []string{"Error: none found"},
			errs:  []error{nil},
		})
		res, err := New().Submit(context.Background(), st, Submission{Message: "lint this"}, nil)
		require.NoError(t, err)
		assert.Equal(t, Committed, res.State)
		assert.Equal(t, "Error: none found", res.Reply)
	})

	t.Run("reported error fails the turn", func(t *testing.T) {
		st := newSession(t, &eventStreamer{
			texts: []string{"Error", cloud.ErrorPrefix + "boom"},
			errs:  []error{nil, fmt.Errorf("boom")},
		})
		res, err := New().Submit(context.Background(), st, Submission{Message: "hi"}, nil)
		require.NoError(t, err)
		assert.Equal(t, Failed, res.State)
		assert.Equal(t, "boom", res.Reply)
		assert.Equal(t, 0, st.HistoryLen())
	})
}

func TestSubmit_UsesPriorTurnsAsContext(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("r1")).Once()
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("r2")).Once()
	st := newSession(t, m)
	orch := New()

	_, err := orch.Submit(context.Background(), st, Submission{Message: "q1"}, nil)
	require.NoError(t, err)
	_, err = orch.Submit(context.Background(), st, Submission{Message: "q2"}, nil)
	require.NoError(t, err)

	req := m.request(t, 1)
	assert.Equal(t, []model.Message{
		model.NewSystemMessage(prompt.DefaultAssistant.Text()),
		model.NewUserMessage("q1"),
		model.NewAssistantMessage("r1"),
		model.NewUserMessage("q2"),
	}, req.Messages)
}

func TestSubmit_PromptChangeResetsHistory(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("a")).Times(3)
	st := newSession(t, m)
	orch := New()
	ctx := context.Background()

	for _, msg := range []string{"one", "two"} {
		_, err := orch.Submit(ctx, st, Submission{Message: msg, PromptChoice: "Code Expert"}, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 5, st.HistoryLen())

	_, err := orch.Submit(ctx, st, Submission{Message: "three", PromptChoice: "Custom", CustomPrompt: "Be a pirate."}, nil)
	require.NoError(t, err)

	assert.Equal(t, []model.Message{
		model.NewSystemMessage("Be a pirate."),
		model.NewUserMessage("three"),
		model.NewAssistantMessage("a"),
	}, st.History())
	assert.Len(t, m.request(t, 2).Messages, 2, "a new persona sends no prior turns")
}

func TestSubmit_TwentyFiveTurns(t *testing.T) {
	m := &mockStreamer{}
	st := newSession(t, m)
	orch := New()

	for i := 1; i <= 25; i++ {
		m.On("Stream", mock.Anything, mock.Anything).Return(seqOf(fmt.Sprintf("r%d", i))).Once()
		_, err := orch.Submit(context.Background(), st, Submission{Message: fmt.Sprintf("q%d", i)}, nil)
		require.NoError(t, err)
	}

	h := st.History()
	require.Len(t, h, session.MaxHistory)
	assert.Equal(t, model.RoleSystem, h[0].Role)
	assert.Equal(t, "q6", h[1].Content)
	assert.Equal(t, "r25", h[len(h)-1].Content)
	assert.Len(t, st.Transcript(), 50, "the transcript is not trimmed")
}

func TestSubmit_AppliesParams(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("x")).Once()
	st := newSession(t, m)

	_, err := New().Submit(context.Background(), st, Submission{
		Message:     "hi",
		Model:       "gpt-4",
		Temperature: 1.3,
		MaxTokens:   9999,
	}, nil)
	require.NoError(t, err)

	req := m.request(t, 0)
	assert.Equal(t, model.GPT4, req.Model)
	assert.InDelta(t, 1.3, req.Temperature, 1e-9)
	assert.Equal(t, model.MaxMaxTokens, req.MaxTokens)
	assert.Equal(t, model.GPT4, st.Params().Model)
}

func TestSubmit_EmptyReplyCommits(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf()).Once()
	st := newSession(t, m)

	res, err := New().Submit(context.Background(), st, Submission{Message: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Committed, res.State)
	assert.Equal(t, "", res.Transcript[1].Content)
	assert.Equal(t, 3, st.HistoryLen())
}

// =============================================================================
// REJECTION TESTS
// =============================================================================

func TestSubmit_MissingCredential(t *testing.T) {
	st := session.NewState("sess_nokey", model.DefaultParams(), nil)
	st.AppendTurn("q", "r", "sys")
	rec := &recorder{}

	res, err := New().Submit(context.Background(), st, Submission{Message: "hello"}, rec.observe)
	require.NoError(t, err)

	assert.Equal(t, AwaitingCredential, res.State)
	assert.Equal(t, []model.Message{
		model.NewUserMessage("hello"),
		model.NewAssistantMessage(NoticeMissingCredential),
	}, res.Transcript)
	assert.Equal(t, 3, st.HistoryLen(), "history is untouched")
	assert.Len(t, rec.snapshots, 1)
}

func TestSubmit_ClearedCredential(t *testing.T) {
	m := &mockStreamer{}
	st := newSession(t, m)

	res, err := New().Submit(context.Background(), st, Submission{Message: "hello", Credential: ptr("  ")}, nil)
	require.NoError(t, err)
	assert.Equal(t, AwaitingCredential, res.State)
	m.AssertNotCalled(t, "Stream", mock.Anything, mock.Anything)
}

func TestSubmit_WhitespaceMessage(t *testing.T) {
	m := &mockStreamer{}
	st := newSession(t, m)

	res, err := New().Submit(context.Background(), st, Submission{Message: "   \t "}, nil)
	require.NoError(t, err)

	assert.Equal(t, AwaitingInput, res.State)
	assert.Equal(t, NoticeEmptyInput, res.Transcript[len(res.Transcript)-1].Content)
	assert.Equal(t, 0, st.HistoryLen())
	m.AssertNumberOfCalls(t, "Stream", 0)
}

func TestSubmit_ConcurrentTurnRejected(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	blocking := func(yield func(string) bool) {
		close(started)
		<-unblock
		yield("done")
	}

	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(iter.Seq[string](blocking)).Once()
	st := newSession(t, m)
	orch := New()

	done := make(chan Result, 1)
	go func() {
		res, _ := orch.Submit(context.Background(), st, Submission{Message: "slow"}, nil)
		done <- res
	}()
	<-started

	_, err := orch.Submit(context.Background(), st, Submission{Message: "fast"}, nil)
	assert.ErrorIs(t, err, session.ErrTurnInProgress)
	assert.ErrorIs(t, orch.Clear(context.Background(), st), session.ErrTurnInProgress)

	close(unblock)
	select {
	case res := <-done:
		assert.Equal(t, Committed, res.State)
	case <-time.After(5 * time.Second):
		t.Fatal("first turn did not finish")
	}
	assert.Equal(t, 3, st.HistoryLen())
}

func TestSubmit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := func(yield func(string) bool) {
		if !yield("partial") {
			return
		}
		cancel()
		yield(cloud.ErrorPrefix + cloud.ErrCancelled.Error())
	}

	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(iter.Seq[string](cancelling)).Once()
	st := newSession(t, m)

	res, err := New().Submit(ctx, st, Submission{Message: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.State)
	assert.Equal(t, FailurePrefix+cloud.ErrCancelled.Error(), res.Transcript[1].Content)
	assert.Equal(t, 0, st.HistoryLen())
}

// =============================================================================
// CLEAR AND STATUS TESTS
// =============================================================================

func TestClear(t *testing.T) {
	m := &mockStreamer{}
	m.On("Stream", mock.Anything, mock.Anything).Return(seqOf("r")).Once()
	st := newSession(t, m)

	var saved int
	orch := New(WithSaver(func(ctx context.Context, s *session.State) error {
		saved++
		return nil
	}))

	_, err := orch.Submit(context.Background(), st, Submission{Message: "q"}, nil)
	require.NoError(t, err)
	require.NoError(t, orch.Clear(context.Background(), st))

	assert.Empty(t, st.Transcript())
	assert.Equal(t, 0, st.HistoryLen())
	assert.Equal(t, 2, saved, "commit and clear both persist")
}

func TestStatusLine(t *testing.T) {
	st := session.NewState("sess_status", model.DefaultParams(), nil)
	st.AppendTurn("q", "r", "sys")

	now := time.Date(2024, 5, 1, 9, 8, 7, 0, time.UTC)
	got := StatusLine(st, now)
	assert.Equal(t, "🟢 **Active** | Model: gpt-4o-mini | Messages: 3 | Time: 09:08:07", got)
	assert.Regexp(t, regexp.MustCompile(`Time: \d{2}:\d{2}:\d{2}$`), got)
}

func TestTurnState_String(t *testing.T) {
	assert.Equal(t, "awaiting_credential", AwaitingCredential.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "TurnState(99)", TurnState(99).String())

	b, err := Cancelled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "cancelled", string(b))
}
