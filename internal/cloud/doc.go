// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the streaming chat completion client used for every
// conversation turn.
//
// The client speaks the OpenAI-compatible chat completions protocol through
// the official openai-go SDK. The wire delivers content deltas; this package
// concatenates them so callers always observe cumulative text.
//
// # Key Types
//
//   - Client: Credential-bound streaming client (retries disabled)
//   - Request: Messages plus generation parameters for one turn
//   - Streamer: Interface implemented by Client and by test doubles
//   - EventStreamer: Streamer variant reporting failures out of band
//   - Accumulator: Delta to cumulative text builder
//
// # Usage
//
//	client, err := cloud.NewClient(apiKey)
//	if err != nil {
//	    return err
//	}
//	for text, err := range client.StreamEvents(ctx, req) {
//	    if err != nil {
//	        return err
//	    }
//	    render(text)
//	}
//
// # Failure Reporting
//
// Stream never returns a Go error. A failure at any point yields exactly one
// element prefixed with ErrorPrefix and then ends the sequence. A reply may
// itself start with ErrorPrefix, so StreamEvents pairs the failure element
// with its error, and Events recovers the same pairing from any Streamer.
package cloud
