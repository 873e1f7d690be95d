// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retry

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests immediately.
	CircuitOpen

	// CircuitHalfOpen allows limited requests to test recovery.
	CircuitHalfOpen
)

// String returns the human-readable name for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// opening. Default: 5.
	FailureThreshold int

	// ResetTimeout is the wait before transitioning open -> half-open.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max probe requests in half-open state.
	// Default: 2.
	HalfOpenMaxRequests int

	// SuccessThreshold is the consecutive successes in half-open needed
	// to close. Default: 2.
	SuccessThreshold int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 2,
		SuccessThreshold:    2,
	}
}

// CircuitBreaker implements the circuit breaker pattern. The engine
// uses it to guard repeated recovery-workflow actions against a
// persistently failing collaborator.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenRequests     int
	lastFailureTime      time.Time
	lastStateChange      time.Time

	mu sync.RWMutex
}

// NewCircuitBreaker creates a circuit breaker in closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow checks if a request should be allowed through.
//
// In half-open state this also counts the probe request.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if now.Sub(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.transitionTo(CircuitHalfOpen, now)
			cb.halfOpenRequests = 1
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			cb.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful request. In half-open state,
// enough consecutive successes close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.consecutiveFailures = 0

	case CircuitHalfOpen:
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed, time.Now())
		}
	}
}

// RecordFailure records a failed request. Consecutive failures open
// the circuit; any failure in half-open reopens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.lastFailureTime = now

	switch cb.state {
	case CircuitClosed:
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen, now)
		}

	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen, now)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset returns the breaker to closed state. Primarily for testing or
// manual intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()
}

// transitionTo changes the circuit state. Must be called with lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState, now time.Time) {
	cb.state = newState
	cb.lastStateChange = now
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0

	if newState == CircuitClosed {
		cb.consecutiveFailures = 0
	}
}
