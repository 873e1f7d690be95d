// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retry

import "errors"

// Sentinel errors for retry operations.
var (
	// ErrInvalidPolicy is returned when a retry policy fails validation.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrCircuitOpen is returned when the circuit breaker rejects a
	// request because too many recent attempts have failed.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrPermanent wraps errors that must never be retried. Stage
	// implementations can mark an error permanent via Permanent().
	ErrPermanent = errors.New("permanent error")
)

// permanentError wraps an error to mark it non-retryable.
type permanentError struct {
	err error
}

// Permanent marks err as non-retryable. The default retry predicate
// refuses to retry errors wrapped this way.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Error implements the error interface.
func (e *permanentError) Error() string {
	return ErrPermanent.Error() + ": " + e.err.Error()
}

// Unwrap returns the underlying error and matches ErrPermanent.
func (e *permanentError) Unwrap() []error {
	return []error{ErrPermanent, e.err}
}
