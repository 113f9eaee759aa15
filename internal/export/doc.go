// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a session's transcript to a timestamped file.
//
// # Key Types
//
//   - Document: the exported record (timestamp, model, system prompt, conversation)
//   - Exporter: encodes a Document in one format
//   - Writer: names, encodes and atomically writes export files
//
// # Supported Formats
//
//   - JSON: the canonical export, keys timestamp/model/system_prompt/conversation
//   - Markdown: human-readable rendering of the same Document
//
// # Usage
//
//	w := export.NewWriter("exports")
//	name, ok, err := w.Export(st.Transcript(), st.Params().Model, st.SystemPrompt())
//	if err == nil && !ok {
//	    // nothing to export
//	}
package export
