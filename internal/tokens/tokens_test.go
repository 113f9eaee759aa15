// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tokens

import (
	"errors"
	"sync"
	"testing"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jeranaias/chatstream/internal/model"
)

// useFallback forces the character heuristic for the duration of a test.
func useFallback(t *testing.T) {
	t.Helper()
	prevLoad, prevEnc := loadEncoding, enc
	loadEncoding = func() (*tiktoken.Tiktoken, error) {
		return nil, errors.New("offline")
	}
	encOnce = sync.Once{}
	enc = nil
	t.Cleanup(func() {
		loadEncoding = prevLoad
		enc = prevEnc
		encOnce = sync.Once{}
	})
}

func TestCount_Empty(t *testing.T) {
	if got := Count(nil); got != 0 {
		t.Errorf("Count(nil) = %d, want 0", got)
	}
	if got := CountText(""); got != 0 {
		t.Errorf("CountText(\"\") = %d, want 0", got)
	}
}

func TestCount_Fallback(t *testing.T) {
	useFallback(t)

	if got := CountText("abcdefgh"); got != 2 {
		t.Errorf("CountText(8 chars) = %d, want 2", got)
	}
	if got := CountText("abc"); got != 1 {
		t.Errorf("CountText(3 chars) = %d, want 1", got)
	}

	msgs := []model.Message{model.NewUserMessage("abcdefgh")}
	// 3 priming + 4 framing + 2 content + 1 role
	if got := Count(msgs); got != 10 {
		t.Errorf("Count() = %d, want 10", got)
	}
}

func TestCount_Monotonic(t *testing.T) {
	useFallback(t)

	short := []model.Message{model.NewUserMessage("hi")}
	long := append(short, model.NewAssistantMessage("hello there, how can I help you today?"))
	if Count(long) <= Count(short) {
		t.Errorf("Count(long)=%d should exceed Count(short)=%d", Count(long), Count(short))
	}
}
