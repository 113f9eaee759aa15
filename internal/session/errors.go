// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "errors"

var (
	// ErrTurnInProgress is returned by BeginTurn while another turn streams.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")

	// ErrSessionNotFound is returned for unknown or disposed session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidConfig indicates a store was configured without its client.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrInvalidStoreType indicates an unsupported store driver.
	ErrInvalidStoreType = errors.New("invalid store type")

	// ErrVersionConflict indicates a concurrent snapshot update.
	ErrVersionConflict = errors.New("snapshot version conflict")

	// ErrNotFound indicates an update to a snapshot that does not exist.
	ErrNotFound = errors.New("snapshot not found")
)
