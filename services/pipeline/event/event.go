// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package event implements the pipeline's pub/sub event bus.
//
// Lifecycle and stage events are broadcast to attached observers
// (logging, metrics). Notifications are fire-and-forget: an observer
// panic is recovered and logged, never allowed to alter pipeline
// control flow.
package event

import "time"

// Type identifies the kind of pipeline event.
type Type string

// Stage-level event types.
const (
	StageStarted  Type = "stage_started"
	StageCompleted Type = "stage_completed"
	StageSkipped  Type = "stage_skipped"
	StageRetrying Type = "stage_retrying"
	StageFailed   Type = "stage_failed"
)

// Pipeline-level event types.
const (
	PipelineStarted   Type = "pipeline_started"
	PipelineCompleted Type = "pipeline_completed"
	PipelineFailed    Type = "pipeline_failed"
	PipelinePaused    Type = "pipeline_paused"
	PipelineResumed   Type = "pipeline_resumed"
)

// Two-pass event types.
const (
	PassCompleted  Type = "pass_completed"
	PassRolledBack Type = "pass_rolled_back"
)

// Event is a single pipeline notification.
type Event struct {
	// Type is the event kind.
	Type Type

	// RunID identifies the pipeline run (task card) this event belongs to.
	RunID string

	// StageName is set for stage-level events, empty otherwise.
	StageName string

	// Data carries event-specific payload (attempt index, backoff
	// delay, stage counts).
	Data map[string]any

	// Err is set for failure events.
	Err error

	// Timestamp records when the event was emitted.
	Timestamp time.Time
}

// Observer receives pipeline events.
//
// OnEvent is called synchronously on the emitting goroutine; keep
// implementations fast and never block.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
