// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/jeranaias/chatstream/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders the Document for reading: YAML front matter,
// the system prompt as a quote, then one section per transcript entry.
type MarkdownExporter struct{}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

// Encode converts a Document to Markdown.
func (e *MarkdownExporter) Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "model: %s\n", escapeYAML(doc.Model))
	fmt.Fprintf(&sb, "exported: %s\n", escapeYAML(doc.Timestamp))
	fmt.Fprintf(&sb, "messages: %d\n", len(doc.Conversation))
	sb.WriteString("generator: chatstream\n")
	sb.WriteString("---\n\n")

	sb.WriteString("# Conversation\n\n")
	if doc.SystemPrompt != "" {
		for _, line := range strings.Split(strings.TrimSpace(doc.SystemPrompt), "\n") {
			sb.WriteString("> " + line + "\n")
		}
		sb.WriteString("\n")
	}

	for i, msg := range doc.Conversation {
		fmt.Fprintf(&sb, "### %s\n\n", roleLabel(msg.Role))
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")
		if i < len(doc.Conversation)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown; charset=utf-8"
}

func roleLabel(r model.Role) string {
	switch r {
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	case model.RoleSystem:
		return "[System]"
	case "":
		return "Unknown"
	default:
		return "[" + string(r) + "]"
	}
}

// escapeYAML quotes a scalar when it would not survive as a plain YAML value.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return "\"" + s + "\""
	}
	return s
}
