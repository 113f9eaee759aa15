// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModel is returned when a model name is outside the selectable set.
var ErrUnknownModel = errors.New("unknown model")

// =============================================================================
// CHAT MODEL ENUMERATION
// =============================================================================

// ChatModel identifies one of the selectable chat completion models.
type ChatModel string

const (
	GPT35Turbo ChatModel = "gpt-3.5-turbo"
	GPT4       ChatModel = "gpt-4"
	GPT4Turbo  ChatModel = "gpt-4-turbo"
	GPT4o      ChatModel = "gpt-4o"
	GPT4oMini  ChatModel = "gpt-4o-mini"
)

// DefaultChatModel is selected when nothing else is configured.
const DefaultChatModel = GPT4oMini

// fallbackModelInfo is shown for models without a description.
const fallbackModelInfo = "📋 Model information not available."

var chatModels = []ChatModel{GPT35Turbo, GPT4, GPT4Turbo, GPT4o, GPT4oMini}

var modelInfo = map[ChatModel]string{
	GPT35Turbo: "⚡ **GPT-3.5 Turbo** - Fast and efficient for most tasks. Cost-effective choice.",
	GPT4:       "🧠 **GPT-4** - Most capable model with superior reasoning. Higher cost but better quality.",
	GPT4Turbo:  "🚀 **GPT-4 Turbo** - Latest GPT-4 with improved performance and larger context window.",
	GPT4o:      "✨ **GPT-4o** - Optimized for conversation with multimodal capabilities.",
	GPT4oMini:  "💫 **GPT-4o Mini** - Lightweight version of GPT-4o. Great balance of speed and capability.",
}

// ChatModels returns the selectable models in display order.
func ChatModels() []ChatModel {
	out := make([]ChatModel, len(chatModels))
	copy(out, chatModels)
	return out
}

// ParseChatModel converts a model name into a ChatModel.
// Surrounding whitespace and case are ignored.
func ParseChatModel(s string) (ChatModel, error) {
	name := ChatModel(strings.ToLower(strings.TrimSpace(s)))
	if name.Valid() {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Valid reports whether m belongs to the selectable set.
func (m ChatModel) Valid() bool {
	_, ok := modelInfo[m]
	return ok
}

// String returns the API identifier of the model.
func (m ChatModel) String() string {
	return string(m)
}

// Info returns the markdown description shown next to the model picker.
func (m ChatModel) Info() string {
	if info, ok := modelInfo[m]; ok {
		return info
	}
	return fallbackModelInfo
}
