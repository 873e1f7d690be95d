// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package statemachine tracks long-lived per-task orchestration state
// across an entire multi-stage pipeline: composite task state,
// per-stage state, active issues, recovery workflows, a pushdown stack
// for nested contexts, and resumable checkpoints.
package statemachine

import "time"

// TaskState is the composite state of one task's pipeline run.
type TaskState string

// Task states.
const (
	TaskPending    TaskState = "PENDING"
	TaskRunning    TaskState = "RUNNING"
	TaskRecovering TaskState = "RECOVERING"
	TaskPaused     TaskState = "PAUSED"
	TaskCompleted  TaskState = "COMPLETED"
	TaskFailed     TaskState = "FAILED"
)

// String returns the state name.
func (s TaskState) String() string { return string(s) }

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// AllTaskStates returns every task state.
func AllTaskStates() []TaskState {
	return []TaskState{TaskPending, TaskRunning, TaskRecovering, TaskPaused, TaskCompleted, TaskFailed}
}

// StageStatus is an individual stage's lifecycle, tracked independently
// of the overall task state.
type StageStatus string

// Stage statuses.
const (
	StagePending   StageStatus = "PENDING"
	StageRunning   StageStatus = "RUNNING"
	StageCompleted StageStatus = "COMPLETED"
	StageFailed    StageStatus = "FAILED"
)

// StageState tracks one stage's lifecycle plus metadata.
type StageState struct {
	Name          string         `json:"name"`
	Status        StageStatus    `json:"status"`
	ResultSummary string         `json:"result_summary,omitempty"`
	StartTime     time.Time      `json:"start_time,omitempty"`
	EndTime       time.Time      `json:"end_time,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// StateTransition is one recorded task state change.
type StateTransition struct {
	From      TaskState `json:"from"`
	To        TaskState `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time view of the whole machine, suitable for
// inspection or persistence.
type Snapshot struct {
	TaskID      string                `json:"task_id"`
	State       TaskState             `json:"state"`
	Stages      map[string]StageState `json:"stages,omitempty"`
	Issues      []Issue               `json:"issues,omitempty"`
	Transitions []StateTransition     `json:"transitions,omitempty"`
	StackDepth  int                   `json:"stack_depth"`
	TakenAt     time.Time             `json:"taken_at"`
}
