// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatstream.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation, and hot reload.
//
// # Key Types
//
//   - Config: the complete configuration
//   - GenerationConfig: default model, temperature and max tokens for new sessions
//   - ProviderConfig: OpenAI-compatible endpoint and credential
//   - ServerConfig, SessionConfig, ExportConfig: service settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OPENAI_*, CHATSTREAM_*), including a .env file
//   - ~/.chatstream/config.toml
//   - ~/.chatstream/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	params := cfg.Generation.Params()
package config
