// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a generation parameter is outside its bounds.
var ErrOutOfRange = errors.New("parameter out of range")

// Generation parameter bounds.
const (
	MinTemperature     = 0.1
	MaxTemperature     = 2.0
	DefaultTemperature = 0.7

	MinMaxTokens     = 100
	MaxMaxTokens     = 4000
	DefaultMaxTokens = 2000
)

// Params are the per-turn generation settings.
type Params struct {
	Model       ChatModel `json:"model" toml:"model"`
	Temperature float64   `json:"temperature" toml:"temperature"`
	MaxTokens   int       `json:"max_tokens" toml:"max_tokens"`
}

// DefaultParams returns the parameters used for new sessions.
func DefaultParams() Params {
	return Params{
		Model:       DefaultChatModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Validate checks the model and both numeric bounds.
func (p Params) Validate() error {
	if !p.Model.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownModel, p.Model)
	}
	if p.Temperature < MinTemperature || p.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f not in [%.1f, %.1f]",
			ErrOutOfRange, p.Temperature, MinTemperature, MaxTemperature)
	}
	if p.MaxTokens < MinMaxTokens || p.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: max_tokens %d not in [%d, %d]",
			ErrOutOfRange, p.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	return nil
}

// Clamp pulls the numeric fields into range and replaces an unknown model
// with the default. Slider input goes through here.
func (p Params) Clamp() Params {
	if !p.Model.Valid() {
		p.Model = DefaultChatModel
	}
	switch {
	case p.Temperature == 0:
		p.Temperature = DefaultTemperature
	case p.Temperature < MinTemperature:
		p.Temperature = MinTemperature
	case p.Temperature > MaxTemperature:
		p.Temperature = MaxTemperature
	}
	switch {
	case p.MaxTokens == 0:
		p.MaxTokens = DefaultMaxTokens
	case p.MaxTokens < MinMaxTokens:
		p.MaxTokens = MinMaxTokens
	case p.MaxTokens > MaxMaxTokens:
		p.MaxTokens = MaxMaxTokens
	}
	return p
}
