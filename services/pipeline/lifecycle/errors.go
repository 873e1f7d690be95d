// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lifecycle

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle operations.
var (
	// ErrInvalidTransition is returned for a state transition not
	// present in the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrModificationLocked is returned when the stage set is mutated
	// while the pipeline is running.
	ErrModificationLocked = errors.New("stage set locked while pipeline is running")
)

// TransitionError describes a rejected state transition.
type TransitionError struct {
	From State
	To   State
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
