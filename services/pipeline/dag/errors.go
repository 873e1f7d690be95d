// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph operations.
var (
	// ErrCycleDetected is returned when the dependency graph contains
	// a cycle and cannot be topologically ordered.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrDuplicateStage is returned when a stage name is registered twice.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrUnknownStage is returned when an operation references a stage
	// that was never registered.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrDanglingDependency is returned when a stage declares a
	// dependency on a stage outside the graph.
	ErrDanglingDependency = errors.New("dependency not present in stage set")

	// ErrEmptyGraph is returned when an operation is attempted on a
	// graph with no stages.
	ErrEmptyGraph = errors.New("graph contains no stages")
)

// CycleError reports the stages involved in a dependency cycle.
type CycleError struct {
	// Stages are the stages that could not be ordered. With Kahn's
	// algorithm this is the set of stages left with non-zero in-degree,
	// i.e. every stage on or downstream of the cycle.
	Stages []string
}

// NewCycleError creates a CycleError for the given unorderable stages.
func NewCycleError(stages []string) *CycleError {
	return &CycleError{Stages: stages}
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Stages, " -> "))
}

// Unwrap allows errors.Is(err, ErrCycleDetected).
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
