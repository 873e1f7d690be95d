// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the narrow LLM client contract consumed by the
// pipeline engine, plus an OpenAI-backed implementation.
//
// The engine only ever needs "send a prompt, get free text back". Provider
// specifics (streaming, tool calls, embeddings) live outside this module.
package llm

import "context"

// GenerationParams tunes a single generation request.
// Nil pointer fields leave the provider default in place.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
