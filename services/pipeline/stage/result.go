// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stage

import "time"

// Result is the outcome of one stage execution attempt.
//
// Created by the executor after each attempt and treated as immutable
// once returned. Aggregated into the pipeline's per-run result map.
type Result struct {
	// StageName identifies which stage produced this result.
	StageName string `json:"stage_name"`

	// Success reports whether the stage completed without error.
	// A skipped stage is considered successful.
	Success bool `json:"success"`

	// Skipped is true when the stage's condition evaluated false
	// and the stage never ran.
	Skipped bool `json:"skipped"`

	// Err holds the final error for failed stages, nil otherwise.
	Err error `json:"-"`

	// RetryCount is the number of retries consumed (0 = first attempt
	// succeeded or stage was skipped).
	RetryCount int `json:"retry_count"`

	// Duration is the wall-clock time of the final attempt.
	Duration time.Duration `json:"duration"`

	// Data carries arbitrary stage output, merged into downstream
	// visibility by the caller if desired.
	Data map[string]any `json:"data,omitempty"`
}

// OK builds a successful result.
func OK(name string, data map[string]any) *Result {
	return &Result{StageName: name, Success: true, Data: data}
}

// Skip builds a skipped (successful) result.
func Skip(name string) *Result {
	return &Result{StageName: name, Success: true, Skipped: true}
}

// Fail builds a failed result carrying err.
func Fail(name string, err error) *Result {
	return &Result{StageName: name, Success: false, Err: err}
}
