// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// eventRecorder collects events by type for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *eventRecorder) OnEvent(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) countType(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func newTestExecutor(t *testing.T, maxRetries int) (*StageExecutor, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	obs := event.NewObservable(nil)
	obs.Attach(rec)
	exec, err := NewStageExecutor(testPolicy(maxRetries), obs, nil)
	if err != nil {
		t.Fatalf("NewStageExecutor: %v", err)
	}
	return exec, rec
}

func TestNewStageExecutor_InvalidPolicy(t *testing.T) {
	bad := retry.Policy{MaxRetries: -1}
	if _, err := NewStageExecutor(bad, nil, nil); !errors.Is(err, retry.ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestExecuteStage_RetriesExhausted(t *testing.T) {
	exec, rec := newTestExecutor(t, 2)

	attempts := 0
	failing := stage.NewFuncStage("development", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			attempts++
			return nil, errors.New("compile failed")
		})

	res := exec.ExecuteStage(context.Background(), failing, stage.Context{}, "run-1")

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
	if res.Success {
		t.Error("result must report failure")
	}
	if res.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", res.RetryCount)
	}
	if got := rec.countType(event.StageRetrying); got != 2 {
		t.Errorf("retrying events = %d, want 2", got)
	}
	if got := rec.countType(event.StageFailed); got != 1 {
		t.Errorf("failed events = %d, want 1", got)
	}
}

func TestExecuteStage_FailOnceThenSucceed(t *testing.T) {
	exec, rec := newTestExecutor(t, 2)

	attempts := 0
	flaky := stage.NewFuncStage("testing", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return stage.OK("testing", nil), nil
		})

	res := exec.ExecuteStage(context.Background(), flaky, stage.Context{}, "run-1")

	if !res.Success {
		t.Fatalf("expected success, got error %v", res.Err)
	}
	if res.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", res.RetryCount)
	}
	if got := rec.countType(event.StageRetrying); got != 1 {
		t.Errorf("retrying events = %d, want exactly 1", got)
	}
	if got := rec.countType(event.StageFailed); got != 0 {
		t.Errorf("failed events = %d, want 0", got)
	}
}

func TestExecuteStage_SkipEmitsNoStartedEvent(t *testing.T) {
	exec, rec := newTestExecutor(t, 2)

	ran := false
	conditional := stage.NewFuncStage("documentation", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			ran = true
			return stage.OK("documentation", nil), nil
		}).WithCondition(func(pctx stage.Context) bool {
		return pctx.GetBool("generate_docs")
	})

	res := exec.ExecuteStage(context.Background(), conditional, stage.Context{}, "run-1")

	if ran {
		t.Error("skipped stage must not execute")
	}
	if !res.Success || !res.Skipped {
		t.Errorf("skip must yield successful skipped result, got %+v", res)
	}
	if got := rec.countType(event.StageStarted); got != 0 {
		t.Errorf("started events = %d, want 0 for skipped stage", got)
	}
	if got := rec.countType(event.StageSkipped); got != 1 {
		t.Errorf("skipped events = %d, want 1", got)
	}
}

func TestExecuteStage_PermanentErrorStopsRetries(t *testing.T) {
	exec, rec := newTestExecutor(t, 5)

	attempts := 0
	fatal := stage.NewFuncStage("architecture", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			attempts++
			return nil, retry.Permanent(errors.New("invalid design document"))
		})

	res := exec.ExecuteStage(context.Background(), fatal, stage.Context{}, "run-1")

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for permanent error", attempts)
	}
	if res.Success {
		t.Error("result must report failure")
	}
	if got := rec.countType(event.StageRetrying); got != 0 {
		t.Errorf("retrying events = %d, want 0", got)
	}
}

func TestExecuteStage_FailedResultRetries(t *testing.T) {
	exec, _ := newTestExecutor(t, 1)

	attempts := 0
	s := stage.NewFuncStage("code_review", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			attempts++
			return stage.Fail("code_review", errors.New("lint errors")), nil
		})

	res := exec.ExecuteStage(context.Background(), s, stage.Context{}, "run-1")

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if res.Success {
		t.Error("result must report failure")
	}
	if res.Err == nil || res.Err.Error() != "lint errors" {
		t.Errorf("final error = %v, want stage's own error", res.Err)
	}
}

func TestExecuteStage_NilResultNilError(t *testing.T) {
	exec, _ := newTestExecutor(t, 0)

	s := stage.NewFuncStage("broken", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			return nil, nil
		})

	res := exec.ExecuteStage(context.Background(), s, stage.Context{}, "run-1")
	if res.Success {
		t.Error("nil result with nil error must fail the stage")
	}
	if !errors.Is(res.Err, ErrNilResult) {
		t.Errorf("error = %v, want ErrNilResult", res.Err)
	}
}

func TestExecuteStage_NilStage(t *testing.T) {
	exec, _ := newTestExecutor(t, 0)
	res := exec.ExecuteStage(context.Background(), nil, stage.Context{}, "run-1")
	if res.Success {
		t.Error("nil stage must fail")
	}
	if !errors.Is(res.Err, ErrNilStage) {
		t.Errorf("error = %v, want ErrNilStage", res.Err)
	}
}

func TestExecuteStage_ContextCanceledDuringBackoff(t *testing.T) {
	rec := &eventRecorder{}
	obs := event.NewObservable(nil)
	obs.Attach(rec)

	slowPolicy := retry.Policy{
		MaxRetries:    3,
		BaseDelay:     5 * time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
	exec, err := NewStageExecutor(slowPolicy, obs, nil)
	if err != nil {
		t.Fatalf("NewStageExecutor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := stage.NewFuncStage("development", nil,
		func(context.Context, stage.Context) (*stage.Result, error) {
			cancel()
			return nil, errors.New("transient")
		})

	done := make(chan *stage.Result, 1)
	go func() {
		done <- exec.ExecuteStage(ctx, s, stage.Context{}, "run-1")
	}()

	select {
	case res := <-done:
		if res.Success {
			t.Error("canceled execution must fail")
		}
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not honor context cancellation during backoff")
	}
}
