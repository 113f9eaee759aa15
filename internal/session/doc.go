// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides per-session conversation state and its lifecycle.
//
// Each browser or terminal session owns one State: the bound credential and
// client, the generation parameters, the active persona, the bounded
// History sent as context, and the Transcript shown to the user.
//
// # Key Types
//
//   - History: Bounded role-tagged log whose first entry is the system prompt
//   - State: Explicit per-session object passed into every turn
//   - Manager: Creates, looks up, disposes and reaps sessions
//   - Store: Snapshot storage with memory and redis drivers
//
// # Usage
//
// Open a session and bind a credential:
//
//	mgr := session.NewManager(session.DefaultConfig(), factory)
//	st, err := mgr.Open(ctx, "")
//	if err != nil {
//	    return err
//	}
//	st.SetCredential(os.Getenv("OPENAI_API_KEY"))
//
// # Concurrency
//
// State methods are safe for concurrent use. A turn must hold the guard
// returned by BeginTurn; a second turn on the same session is rejected with
// ErrTurnInProgress.
package session
