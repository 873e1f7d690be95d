// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import "errors"

// Sentinel errors for executor operations.
var (
	// ErrNilContext is returned when a nil context.Context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilStage is returned when a nil stage is passed.
	ErrNilStage = errors.New("stage must not be nil")

	// ErrInvalidWorkers is returned when the parallel executor is
	// configured with a non-positive worker count.
	ErrInvalidWorkers = errors.New("max workers must be positive")

	// ErrDependencyFailed marks a stage that was never scheduled
	// because a direct or transitive dependency failed.
	ErrDependencyFailed = errors.New("dependency failed, stage not scheduled")

	// ErrNilResult is returned as the failure cause when a stage's
	// Execute returns neither a result nor an error.
	ErrNilResult = errors.New("stage returned no result and no error")
)
