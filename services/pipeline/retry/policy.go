// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retry provides retry policies with exponential backoff and a
// circuit breaker for fault tolerance.
//
// A Policy is an immutable configuration object shared read-only by all
// stage executions within a pipeline. The numeric defaults are
// configuration, not invariants; override them via the pipeline config.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy decides whether and how long to wait before retrying a failed
// stage.
//
// Thread Safety:
//
//	Policy is a value type with no mutable state; safe to share.
type Policy struct {
	// MaxRetries is the maximum number of retries after the initial
	// attempt. 0 disables retries.
	MaxRetries int

	// BaseDelay is the backoff before the first retry.
	// Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff. Default: 30s.
	MaxDelay time.Duration

	// BackoffFactor is the exponential multiplier:
	// delay = BaseDelay * BackoffFactor^attempt. Default: 2.0.
	BackoffFactor float64

	// JitterFactor is the maximum jitter as a fraction of the delay
	// (0-1). Prevents thundering herd. Default: 0.2.
	JitterFactor float64

	// RetryIf classifies errors as retryable. Nil means "retry
	// everything except permanent and context errors".
	RetryIf func(error) bool
}

// DefaultPolicy returns sensible defaults for stage retry behavior.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    2,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Validate checks if the policy configuration is valid.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return ErrInvalidPolicy
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return ErrInvalidPolicy
	}
	if p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return ErrInvalidPolicy
	}
	if p.BackoffFactor < 1.0 {
		return ErrInvalidPolicy
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		return ErrInvalidPolicy
	}
	return nil
}

// ShouldRetry reports whether a failed attempt should be retried.
//
// Inputs:
//
//	err - The error from the failed attempt.
//	attempt - Zero-based index of the attempt that just failed
//	          (0 = initial attempt).
//
// Outputs:
//
//	bool - True if another attempt is allowed.
func (p Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxRetries {
		return false
	}
	if errors.Is(err, ErrPermanent) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}

// Delay computes the backoff before retrying after the given attempt.
//
// delay = BaseDelay * BackoffFactor^attempt, clamped to MaxDelay, with
// +/- JitterFactor randomization applied.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	d := time.Duration(float64(base) * math.Pow(p.BackoffFactor, float64(attempt)))
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * p.JitterFactor
		d = time.Duration(float64(d) * (1.0 + jitter))
	}
	return d
}

// Sleep blocks for the attempt's backoff delay or until the context is
// canceled. This is the executor's suspension point between attempts.
//
// Outputs:
//
//	error - The context error if canceled before the delay elapsed.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
