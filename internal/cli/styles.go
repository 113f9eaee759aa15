// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// PALETTE
// =============================================================================

var (
	colorCyan    = lipgloss.Color("39")
	colorPurple  = lipgloss.Color("141")
	colorGreen   = lipgloss.Color("42")
	colorAmber   = lipgloss.Color("214")
	colorRed     = lipgloss.Color("196")
	colorGray    = lipgloss.Color("245")
	colorDimGray = lipgloss.Color("240")
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)

	userRoleStyle      = lipgloss.NewStyle().Foreground(colorCyan)
	assistantRoleStyle = lipgloss.NewStyle().Foreground(colorPurple)
)

// renderSeparator renders a horizontal rule of width columns.
func renderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return separatorStyle.Render(strings.Repeat("─", width))
}

// renderHeader renders a section title with a rule under it.
func renderHeader(title string) string {
	return headerStyle.Render(title) + "\n" + renderSeparator(len(title)+4)
}
