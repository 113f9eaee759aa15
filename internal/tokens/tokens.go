// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates the prompt size of a conversation.
//
// Counting uses the cl100k_base encoding when it can be loaded and falls
// back to a character heuristic otherwise, so callers always get a number.
package tokens

import (
	"log"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jeranaias/chatstream/internal/model"
)

// Encoding is the BPE encoding shared by the selectable chat models.
const Encoding = "cl100k_base"

// Per-message framing overhead of the chat format.
const (
	perMessage   = 4
	replyPriming = 3
	charsPerTok  = 4
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken

	// loadEncoding is replaced in tests.
	loadEncoding = func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding(Encoding)
	}
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := loadEncoding()
		if err != nil {
			log.Printf("TOKENIZER_FALLBACK | encoding=%s error=%v", Encoding, err)
			return
		}
		enc = e
	})
	return enc
}

// DisableEncoding forces the character heuristic for the rest of the
// process. The BPE file is downloaded on first use, which air-gapped hosts
// and hermetic tests cannot do.
func DisableEncoding() {
	encOnce.Do(func() {})
}

// CountText returns the token count of a single string.
func CountText(text string) int {
	if text == "" {
		return 0
	}
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + charsPerTok - 1) / charsPerTok
}

// Count estimates the prompt tokens of msgs including chat framing.
func Count(msgs []model.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := replyPriming
	for _, m := range msgs {
		total += perMessage + CountText(m.Content) + CountText(m.Role.String())
	}
	return total
}
