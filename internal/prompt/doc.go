// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt holds the fixed registry of assistant personas and the
// custom system-prompt override.
//
// # Key Types
//
//   - Persona: Closed enumeration of built-in personas plus Custom
//   - Selection: A persona choice together with optional custom text
//
// # Usage
//
//	text := prompt.Resolve("Creative Writer", "")
//
//	sel := prompt.Select("Custom", "You are terse.")
//	fmt.Println(sel.Text())
package prompt
