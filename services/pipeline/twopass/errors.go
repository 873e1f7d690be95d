// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package twopass

import "errors"

// Sentinel errors for two-pass execution.
var (
	// ErrFirstPassFailed is returned when the first pass fails
	// terminally. The first pass is foundational; there is nothing to
	// refine.
	ErrFirstPassFailed = errors.New("first pass failed")

	// ErrNilStrategy is returned when an executor is constructed
	// without both pass strategies.
	ErrNilStrategy = errors.New("pass strategy must not be nil")

	// ErrNoMemento is returned when a rollback is requested but no
	// memento was captured.
	ErrNoMemento = errors.New("no memento captured")

	// ErrNilResult is returned when a pass strategy returns neither a
	// result nor an error.
	ErrNilResult = errors.New("pass returned no result and no error")
)
