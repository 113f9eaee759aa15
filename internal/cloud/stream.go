// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
)

// Streamer produces the cumulative response text of one completion call.
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq[string]
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator turns wire deltas into cumulative text.
type Accumulator struct {
	buf    strings.Builder
	chunks int
}

// Add appends a delta and reports whether it carried content.
func (a *Accumulator) Add(delta string) bool {
	if delta == "" {
		return false
	}
	a.buf.WriteString(delta)
	a.chunks++
	return true
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.buf.String()
}

// Chunks returns the number of non-empty deltas received.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream issues one streaming request and returns a lazy, single-pass
// sequence of cumulative text. The request is sent when iteration starts.
// Breaking out of the loop or cancelling ctx closes the provider stream.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq[string] {
	events := c.StreamEvents(ctx, req)
	return func(yield func(string) bool) {
		for text := range events {
			if !yield(text) {
				return
			}
		}
	}
}

// StreamEvents is Stream with the failure reported out of band: the
// sentinel element is paired with the error it renders, every other element
// with nil.
func (c *Client) StreamEvents(ctx context.Context, req Request) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		fail := func(err error) {
			yield(ErrorText(err), classify(err))
		}
		if used.Swap(true) {
			fail(ErrStreamConsumed)
			return
		}
		if len(req.Messages) == 0 {
			fail(ErrEmptyRequest)
			return
		}
		if !req.Model.Valid() {
			fail(fmt.Errorf("%w: %q", model.ErrUnknownModel, req.Model))
			return
		}

		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		stream := c.sdk.Chat.Completions.NewStreaming(ctx, req.params())
		defer stream.Close()

		var acc Accumulator
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if !acc.Add(chunk.Choices[0].Delta.Content) {
				continue
			}
			if !yield(acc.Text(), nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			log.Printf("STREAM_FAILED | model=%s chunks=%d duration=%v error=%v",
				req.Model, acc.Chunks(), time.Since(start).Round(time.Millisecond), classify(err))
			fail(err)
			return
		}
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		log.Printf("STREAM_COMPLETE | model=%s chunks=%d chars=%d duration=%v",
			req.Model, acc.Chunks(), len(acc.Text()), time.Since(start).Round(time.Millisecond))
	}
}

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

// EventStreamer is implemented by clients that report failures out of band.
type EventStreamer interface {
	StreamEvents(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Events returns the stream of s paired with failures. Clients that only
// implement Streamer are classified in band; see Failure.
func Events(ctx context.Context, s Streamer, req Request) iter.Seq2[string, error] {
	if es, ok := s.(EventStreamer); ok {
		return es.StreamEvents(ctx, req)
	}
	seq := s.Stream(ctx, req)
	return func(yield func(string, error) bool) {
		var prev string
		for text := range seq {
			if desc, failed := Failure(prev, text); failed {
				yield(text, errors.New(desc))
				return
			}
			if !yield(text, nil) {
				return
			}
			prev = text
		}
	}
}

// Failure reports whether elem, the element that followed prev, is the
// failure sentinel and returns its description. Cumulative text always
// extends the previous element, so a sentinel-looking element that extends
// a non-empty prev is reply text. A sentinel without a description is still
// a failure.
func Failure(prev, elem string) (string, bool) {
	if !IsErrorText(elem) {
		return "", false
	}
	if prev != "" && strings.HasPrefix(elem, prev) {
		return "", false
	}
	return describe(ErrorDescription(elem)), true
}

// FailureDescription renders a stream error for the transcript.
func FailureDescription(err error) string {
	if err == nil {
		return ""
	}
	return describe(err.Error())
}

func describe(desc string) string {
	if desc = strings.TrimSpace(desc); desc == "" {
		return ErrUnknownFailure.Error()
	}
	return desc
}

// Last drains seq and returns its final element.
func Last(seq iter.Seq[string]) string {
	var last string
	for s := range seq {
		last = s
	}
	return last
}
