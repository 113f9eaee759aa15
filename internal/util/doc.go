// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the export, config and CLI layers.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writes (temp file, fsync, rename)
//   - Preview: single-line, display-width bounded rendering of chat text
//   - DisplayWidth: terminal column width of a string
package util
