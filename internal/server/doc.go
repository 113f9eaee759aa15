// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP surface of the browser chat UI.
//
// # Endpoints
//
//   - GET    /                  - Chat page (embedded)
//   - POST   /api/submit        - Run one turn, streamed as server-sent events
//   - POST   /api/clear         - Empty transcript and history
//   - POST   /api/export        - Write the transcript to a file (?format=json|md)
//   - GET    /api/export/{name} - Download a previous export
//   - GET    /api/status        - Status line and current settings
//   - GET    /api/session       - Transcript and settings, for page reloads
//   - DELETE /api/session       - Dispose the session
//   - GET    /api/models        - Selectable models
//   - GET    /api/prompts       - Personas
//   - GET    /health            - Health check
//
// # Sessions
//
// The chat_session cookie names the session. A missing or unknown cookie
// opens a new session bound to the environment credential. A second submit
// while a turn is streaming answers 409 Conflict.
//
// # Streaming
//
// Each transcript change of a turn is one SSE frame:
//
//	data: {"transcript":[{"role":"user","content":"hi"},{"role":"assistant","content":"Hel"}]}
//
// and the turn ends with
//
//	event: done
//	data: {"state":"committed","status":"🟢 **Active** | ...","history":3}
package server
