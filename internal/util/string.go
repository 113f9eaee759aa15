// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Ellipsis marks truncated previews.
const Ellipsis = "..."

// DisplayWidth returns the number of terminal columns s occupies. Wide
// runes such as CJK and most emoji count as two.
func DisplayWidth(s string) int {
	return runewidth.StringWidth(s)
}

// Preview collapses whitespace runs (newlines included) to single spaces and
// truncates the result to at most width columns, ending with Ellipsis when
// cut. Multi-byte and wide runes are never split.
func Preview(s string, width int) string {
	if width <= 0 {
		return ""
	}
	flat := strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(flat) <= width {
		return flat
	}
	if width <= len(Ellipsis) {
		return runewidth.Truncate(flat, width, "")
	}
	return runewidth.Truncate(flat, width, Ellipsis)
}
