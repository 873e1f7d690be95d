// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retry

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    3,
		ResetTimeout:        time.Minute,
		HalfOpenMaxRequests: 1,
		SuccessThreshold:    1,
	})

	for i := 0; i < 2; i++ {
		if !cb.Allow() {
			t.Fatal("closed breaker must allow")
		}
		cb.RecordFailure()
	}
	if cb.State() != CircuitClosed {
		t.Fatal("breaker opened before threshold")
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after 3 failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("open breaker must reject")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != CircuitClosed {
		t.Errorf("success should reset the consecutive failure count, state %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    1,
		ResetTimeout:        time.Millisecond,
		HalfOpenMaxRequests: 2,
		SuccessThreshold:    2,
	})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatal("expected open")
	}

	time.Sleep(2 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected half-open probe allowed after reset timeout")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}

	cb.RecordSuccess()
	if !cb.Allow() {
		t.Fatal("expected second probe allowed")
	}
	cb.RecordSuccess()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after success threshold, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    1,
		ResetTimeout:        time.Millisecond,
		HalfOpenMaxRequests: 1,
		SuccessThreshold:    1,
	})

	cb.RecordFailure()
	time.Sleep(2 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected half-open probe allowed")
	}
	cb.RecordFailure()

	if cb.State() != CircuitOpen {
		t.Errorf("half-open failure must reopen, got %v", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != CircuitClosed || !cb.Allow() {
		t.Error("Reset must close the breaker")
	}
}
