// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for messages, chat models and
// generation parameters.
//
// This package defines the core domain types shared by the session, cloud,
// export and server packages.
//
// # Key Types
//
//   - Message: Single role-tagged message (system, user, assistant)
//   - Role: Message role enumeration
//   - ChatModel: Closed set of selectable chat completion models
//   - Params: Generation parameters with enforced bounds
//
// # Usage
//
// Build messages:
//
//	msgs := []model.Message{
//	    model.NewSystemMessage("You are helpful."),
//	    model.NewUserMessage("Hello!"),
//	}
//
// Validate user-chosen parameters:
//
//	p := model.Params{Model: model.GPT4o, Temperature: 0.7, MaxTokens: 2000}
//	if err := p.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package model
