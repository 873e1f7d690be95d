// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lifecycle manages the pipeline-level state machine.
//
// The manager enforces the following transition graph:
//
//	CREATED → READY       : Build-time validation passed
//	READY → RUNNING       : Execution started
//	RUNNING → PAUSED      : Execution suspended
//	PAUSED → RUNNING      : Execution resumed
//	RUNNING → COMPLETED   : All stages finished (terminal)
//	RUNNING → FAILED      : Unrecoverable failure (terminal)
//	PAUSED → FAILED       : Failure while suspended (terminal)
//
// Illegal transitions return a *TransitionError, never a silent no-op.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redmage123/artemis-sub007/services/pipeline/event"
)

// State is a pipeline lifecycle state.
type State string

// Pipeline lifecycle states.
const (
	StateCreated   State = "CREATED"
	StateReady     State = "READY"
	StateRunning   State = "RUNNING"
	StatePaused    State = "PAUSED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AllStates returns every lifecycle state.
func AllStates() []State {
	return []State{StateCreated, StateReady, StateRunning, StatePaused, StateCompleted, StateFailed}
}

// Transition is one recorded state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager owns one pipeline's lifecycle state and enforces the
// transition table.
//
// Thread Safety:
//
//	Manager is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	state       State
	history     []Transition
	transitions map[State]map[State]bool

	observable *event.Observable
	logger     *slog.Logger
}

// NewManager creates a manager in the CREATED state.
//
// Inputs:
//
//	observable - Event bus for lifecycle events. Nil creates a bus with
//	             no observers.
//	logger - Logger for transition logs. If nil, uses slog.Default().
func NewManager(observable *event.Observable, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if observable == nil {
		observable = event.NewObservable(logger)
	}

	m := &Manager{
		state:       StateCreated,
		transitions: make(map[State]map[State]bool),
		observable:  observable,
		logger:      logger,
	}
	for _, s := range AllStates() {
		m.transitions[s] = make(map[State]bool)
	}

	m.addTransition(StateCreated, StateReady)
	m.addTransition(StateReady, StateRunning)
	m.addTransition(StateRunning, StatePaused)
	m.addTransition(StatePaused, StateRunning)
	m.addTransition(StateRunning, StateCompleted)
	m.addTransition(StateRunning, StateFailed)
	m.addTransition(StatePaused, StateFailed)

	return m
}

// addTransition registers a valid transition.
func (m *Manager) addTransition(from, to State) {
	m.transitions[from][to] = true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns a copy of the recorded transitions.
func (m *Manager) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransition checks if a transition from one state to another is valid.
func (m *Manager) CanTransition(from, to State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if toMap, ok := m.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// transition validates and applies a state change while holding the lock.
func (m *Manager) transition(to State, reason string) error {
	m.mu.Lock()
	from := m.state
	if !m.transitions[from][to] {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	m.history = append(m.history, Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	m.mu.Unlock()

	m.logger.Info("pipeline state transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason),
	)
	return nil
}

// TransitionToReady moves CREATED → READY after build-time validation.
func (m *Manager) TransitionToReady() error {
	return m.transition(StateReady, "build validation passed")
}

// StartExecution moves READY → RUNNING and emits a pipeline-started
// event.
//
// Description:
//
//	Fails unless the pipeline is READY. This is the guard against
//	re-entrant execution: a second StartExecution while the pipeline
//	runs (or after it finished) is rejected and the state is left
//	untouched.
//
// Inputs:
//
//	runID - Identifies the pipeline run for event correlation.
//
// Outputs:
//
//	error - *TransitionError if the pipeline is not READY.
func (m *Manager) StartExecution(runID string) error {
	if err := m.transition(StateRunning, "execution started"); err != nil {
		return err
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelineStarted,
		RunID: runID,
	})
	return nil
}

// Pause moves RUNNING → PAUSED.
func (m *Manager) Pause(runID string) error {
	if err := m.transition(StatePaused, "execution paused"); err != nil {
		return err
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelinePaused,
		RunID: runID,
	})
	return nil
}

// Resume moves PAUSED → RUNNING.
func (m *Manager) Resume(runID string) error {
	if err := m.transition(StateRunning, "execution resumed"); err != nil {
		return err
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelineResumed,
		RunID: runID,
	})
	return nil
}

// MarkCompleted moves RUNNING → COMPLETED and emits a completion event
// carrying the executed stage count.
func (m *Manager) MarkCompleted(runID string, stageCount int) error {
	if err := m.transition(StateCompleted, "all stages finished"); err != nil {
		return err
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelineCompleted,
		RunID: runID,
		Data:  map[string]any{"stage_count": stageCount},
	})
	return nil
}

// MarkFailed moves RUNNING or PAUSED → FAILED and emits a failure
// event carrying per-stage failure detail.
func (m *Manager) MarkFailed(runID string, failures map[string]error) error {
	if err := m.transition(StateFailed, "stage failures"); err != nil {
		return err
	}

	detail := make(map[string]any, len(failures))
	for name, ferr := range failures {
		if ferr != nil {
			detail[name] = ferr.Error()
		}
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelineFailed,
		RunID: runID,
		Data:  map[string]any{"failures": detail},
	})
	return nil
}

// MarkError moves RUNNING or PAUSED → FAILED for an engine-level error
// (as opposed to stage failures).
func (m *Manager) MarkError(runID string, cause error) error {
	if err := m.transition(StateFailed, "engine error"); err != nil {
		return err
	}
	m.observable.Notify(event.Event{
		Type:  event.PipelineFailed,
		RunID: runID,
		Err:   cause,
	})
	return nil
}

// CanModifyStages reports whether the stage set may be mutated.
// Mutation is allowed in every state except RUNNING.
func (m *Manager) CanModifyStages() bool {
	return m.State() != StateRunning
}

// ValidateStageModification fails if the stage set is locked.
//
// Inputs:
//
//	op - The attempted operation name, included in the error.
//
// Outputs:
//
//	error - ErrModificationLocked if the pipeline is RUNNING.
func (m *Manager) ValidateStageModification(op string) error {
	if !m.CanModifyStages() {
		return fmt.Errorf("%s: %w", op, ErrModificationLocked)
	}
	return nil
}
