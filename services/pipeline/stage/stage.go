// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stage defines the unit-of-work contract for the Artemis
// pipeline engine.
//
// Concrete stage bodies (requirements parsing, architecture generation,
// development, code review, testing, documentation) live outside this
// module and satisfy the Stage interface. The engine only needs a name,
// a dependency list, a conditional-execution predicate and an execution
// function.
package stage

import (
	"context"
	"fmt"
	"time"
)

// DefaultEstimatedDuration is assumed for stages that don't declare one.
// Only used for critical-path analysis, never for scheduling.
const DefaultEstimatedDuration = 1 * time.Second

// Stage is a unit of pipeline work.
//
// Implementations must be safe to invoke multiple times within one
// pipeline run (the executor retries failed stages with a fresh call).
// Stages communicate only through the Context they are given and the
// Result they return; they must never reach into pipeline state.
type Stage interface {
	// Name returns the stage's unique identifier within a pipeline.
	Name() string

	// Dependencies returns the names of stages that must complete first.
	Dependencies() []string

	// ShouldExecute reports whether the stage should run for this
	// pipeline context. Returning false skips the stage without failure.
	ShouldExecute(pctx Context) bool

	// EstimatedDuration returns the stage's nominal duration for
	// critical-path analysis.
	EstimatedDuration() time.Duration

	// Execute runs the stage's work.
	Execute(ctx context.Context, pctx Context) (*Result, error)
}

// BaseStage provides a partial implementation of the Stage interface.
//
// Description:
//
//	BaseStage implements the common parts of Stage (name, dependencies,
//	condition, estimated duration). Embed this in concrete stage
//	implementations and override Execute.
//
// Example:
//
//	type ReviewStage struct {
//	    stage.BaseStage
//	    // custom fields
//	}
//
//	func NewReviewStage() *ReviewStage {
//	    return &ReviewStage{
//	        BaseStage: stage.BaseStage{
//	            StageName:         "code_review",
//	            StageDependencies: []string{"development"},
//	        },
//	    }
//	}
type BaseStage struct {
	StageName         string
	StageDependencies []string
	StageDuration     time.Duration

	// Condition gates execution. Nil means "always execute".
	Condition func(pctx Context) bool
}

// Name returns the stage's unique identifier.
func (s *BaseStage) Name() string {
	return s.StageName
}

// Dependencies returns the names of stages that must complete first.
func (s *BaseStage) Dependencies() []string {
	if s.StageDependencies == nil {
		return []string{}
	}
	return s.StageDependencies
}

// ShouldExecute evaluates the stage's condition against the context.
func (s *BaseStage) ShouldExecute(pctx Context) bool {
	if s.Condition == nil {
		return true
	}
	return s.Condition(pctx)
}

// EstimatedDuration returns the stage's nominal duration.
func (s *BaseStage) EstimatedDuration() time.Duration {
	if s.StageDuration == 0 {
		return DefaultEstimatedDuration
	}
	return s.StageDuration
}

// Execute returns an error if called directly.
// Concrete implementations must override this method.
func (s *BaseStage) Execute(_ context.Context, _ Context) (*Result, error) {
	return nil, fmt.Errorf("%w: BaseStage.Execute must be overridden by concrete implementation", ErrNotImplemented)
}

// FuncStage wraps a function as a Stage for simple cases.
//
// Example:
//
//	s := stage.NewFuncStage("testing", []string{"development"},
//	    func(ctx context.Context, pctx stage.Context) (*stage.Result, error) {
//	        return stage.OK("testing", nil), nil
//	    })
type FuncStage struct {
	BaseStage
	fn func(context.Context, Context) (*Result, error)
}

// NewFuncStage creates a stage from a function.
//
// Inputs:
//
//	name - The stage name.
//	deps - Dependency stage names.
//	fn - The function to execute.
func NewFuncStage(
	name string,
	deps []string,
	fn func(context.Context, Context) (*Result, error),
) *FuncStage {
	return &FuncStage{
		BaseStage: BaseStage{
			StageName:         name,
			StageDependencies: deps,
		},
		fn: fn,
	}
}

// Execute runs the wrapped function.
func (s *FuncStage) Execute(ctx context.Context, pctx Context) (*Result, error) {
	if s.fn == nil {
		return nil, ErrNotImplemented
	}
	return s.fn(ctx, pctx)
}

// WithCondition sets the conditional-execution predicate.
func (s *FuncStage) WithCondition(cond func(pctx Context) bool) *FuncStage {
	s.Condition = cond
	return s
}

// WithEstimatedDuration sets the nominal duration used for critical-path
// analysis.
func (s *FuncStage) WithEstimatedDuration(d time.Duration) *FuncStage {
	s.StageDuration = d
	return s
}
