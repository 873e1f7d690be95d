// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import "errors"

// Sentinel errors for task state machine operations.
var (
	// ErrInvalidTransition is returned for a task state transition not
	// present in the transition table.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoWorkflow is returned when no workflow is registered for an
	// issue type and no workflow could be generated.
	ErrNoWorkflow = errors.New("no workflow available for issue")

	// ErrUnknownAction is returned when a workflow names an action not
	// present in the action registry.
	ErrUnknownAction = errors.New("unknown workflow action")

	// ErrEmptyStack is returned when popping or peeking an empty
	// pushdown stack.
	ErrEmptyStack = errors.New("state stack is empty")

	// ErrStateNotOnStack is returned when rolling back to a state that
	// is not on the pushdown stack.
	ErrStateNotOnStack = errors.New("target state not on stack")

	// ErrNoCheckpoint is returned when resume is requested but no
	// checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")

	// ErrCheckpointCorrupt is returned when a checkpoint fails its
	// integrity check.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")

	// ErrCheckpointMismatch is returned when a checkpoint belongs to a
	// different task.
	ErrCheckpointMismatch = errors.New("checkpoint belongs to a different task")

	// ErrNoLLMClient is returned when workflow generation is requested
	// without a configured LLM client.
	ErrNoLLMClient = errors.New("no llm client configured")

	// ErrUnparseableWorkflow is returned when the LLM response contains
	// no parseable workflow JSON.
	ErrUnparseableWorkflow = errors.New("llm response contains no parseable workflow")
)
