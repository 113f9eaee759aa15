// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator runs one conversation turn against a session.
//
// A turn moves from Idle to AwaitingCredential, AwaitingInput or Streaming,
// and a stream ends Committed, Failed or Cancelled. Every transcript change
// is pushed to an Observer before the next partial is consumed, so callers
// can reveal the response incrementally.
//
// # Usage
//
//	orch := orchestrator.New(orchestrator.WithSaver(mgr.Save))
//	res, err := orch.Submit(ctx, st, orchestrator.Submission{
//	    Message:      "Write a haiku about rain",
//	    PromptChoice: "Creative Writer",
//	}, func(transcript []model.Message) {
//	    render(transcript)
//	})
package orchestrator
