// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "errors"

// Sentinel errors for pipeline construction and execution.
var (
	// ErrNoStages is returned when a pipeline is built with an empty
	// stage set.
	ErrNoStages = errors.New("pipeline requires at least one stage")

	// ErrDuplicateStages is returned when two stages share a name.
	ErrDuplicateStages = errors.New("duplicate stage names")

	// ErrDanglingDependencies is returned when a stage declares a
	// dependency not present in the stage set.
	ErrDanglingDependencies = errors.New("dependencies reference unknown stages")

	// ErrStageNotFound is returned when a runtime removal names an
	// unknown stage.
	ErrStageNotFound = errors.New("stage not found")

	// ErrNilStage is returned when a nil stage is added.
	ErrNilStage = errors.New("stage must not be nil")
)
