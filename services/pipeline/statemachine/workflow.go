// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// WorkflowAction is one named recovery operation within a workflow.
type WorkflowAction struct {
	// Name identifies the action in the action registry.
	Name string `json:"name"`

	// MaxRetries bounds retry attempts for this action.
	MaxRetries int `json:"max_retries"`

	// Params carries action-specific parameters.
	Params map[string]any `json:"params,omitempty"`
}

// Workflow associates an issue type with an ordered list of recovery
// actions and declares the target states.
type Workflow struct {
	// IssueType is the issue this workflow recovers from.
	IssueType IssueType `json:"issue_type"`

	// Actions run in order; each with its own retry bound.
	Actions []WorkflowAction `json:"actions"`

	// SuccessState is entered when all actions succeed.
	SuccessState TaskState `json:"success_state"`

	// FailureState is entered when any action fails terminally.
	FailureState TaskState `json:"failure_state"`

	// RollbackOnFailure pops the state stack back to the pre-recovery
	// state when the workflow fails.
	RollbackOnFailure bool `json:"rollback_on_failure"`
}

// Validate checks the workflow's shape.
func (w Workflow) Validate() error {
	if w.IssueType == "" {
		return fmt.Errorf("%w: workflow issue type must not be empty", ErrInvalidInput)
	}
	if len(w.Actions) == 0 {
		return fmt.Errorf("%w: workflow must declare at least one action", ErrInvalidInput)
	}
	for i, a := range w.Actions {
		if a.Name == "" {
			return fmt.Errorf("%w: action %d has no name", ErrInvalidInput, i)
		}
		if a.MaxRetries < 0 {
			return fmt.Errorf("%w: action %q max_retries must be >= 0", ErrInvalidInput, a.Name)
		}
	}
	if w.SuccessState == "" || w.FailureState == "" {
		return fmt.Errorf("%w: workflow must declare success and failure states", ErrInvalidInput)
	}
	return nil
}

// ActionFunc executes one recovery operation.
type ActionFunc func(ctx context.Context, params map[string]any) error

// ActionRegistry maps action names to executable operations.
//
// Thread Safety:
//
//	ActionRegistry is safe for concurrent use.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]ActionFunc)}
}

// Register binds a name to an action, replacing any previous binding.
func (r *ActionRegistry) Register(name string, fn ActionFunc) {
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	r.actions[name] = fn
	r.mu.Unlock()
}

// Lookup returns the action bound to name.
func (r *ActionRegistry) Lookup(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

// Names returns every registered action name.
func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	return out
}
