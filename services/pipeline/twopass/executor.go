// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package twopass

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// Context keys used to seed the second pass with first-pass output.
const (
	KeyFirstPassLearnings = "first_pass_learnings"
	KeyFirstPassInsights  = "first_pass_insights"
	KeyFirstPassArtifacts = "first_pass_artifacts"
)

// Strategy executes one pass.
//
// Implementations must be safe to invoke multiple times within one run
// (the executor retries failed passes with a fresh call).
type Strategy interface {
	// Name identifies the pass ("first_pass", "second_pass").
	Name() string

	// Execute runs the pass against the given pipeline context.
	Execute(ctx context.Context, pctx stage.Context) (*PassResult, error)
}

// StrategyFunc wraps a function as a Strategy.
type StrategyFunc struct {
	PassName string
	Fn       func(ctx context.Context, pctx stage.Context) (*PassResult, error)
}

// Name implements Strategy.
func (s StrategyFunc) Name() string { return s.PassName }

// Execute implements Strategy.
func (s StrategyFunc) Execute(ctx context.Context, pctx stage.Context) (*PassResult, error) {
	return s.Fn(ctx, pctx)
}

// ExecutorConfig configures a two-pass executor.
type ExecutorConfig struct {
	// AutoRollback enables rollback when the second pass degrades
	// quality beyond RollbackThreshold.
	AutoRollback bool

	// RollbackThreshold is the quality-delta floor (a negative number;
	// -0.1 tolerates up to a 10% regression).
	RollbackThreshold float64

	// Retry bounds per-pass retry attempts.
	Retry retry.Policy
}

// DefaultExecutorConfig returns rollback-enabled defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		AutoRollback:      true,
		RollbackThreshold: -0.1,
		Retry:             retry.DefaultPolicy(),
	}
}

// Executor orchestrates a first (draft) and second (refinement) pass.
//
// The run is a two-state machine: FIRST_PASS → SECOND_PASS →
// {ACCEPTED | ROLLED_BACK}, where ROLLED_BACK always substitutes the
// first pass's result.
type Executor struct {
	first      Strategy
	second     Strategy
	comparator *Comparator
	rollback   *RollbackManager
	config     ExecutorConfig
	observable *event.Observable
	logger     *slog.Logger
}

// NewExecutor creates a two-pass executor.
//
// Outputs:
//
//	*Executor - The configured executor.
//	error - ErrNilStrategy if either pass is missing, or an invalid
//	        retry policy error.
func NewExecutor(first, second Strategy, cfg ExecutorConfig, observable *event.Observable, logger *slog.Logger) (*Executor, error) {
	if first == nil || second == nil {
		return nil, ErrNilStrategy
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("two-pass executor: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observable == nil {
		observable = event.NewObservable(logger)
	}
	return &Executor{
		first:      first,
		second:     second,
		comparator: NewComparator(),
		rollback:   NewRollbackManager(),
		config:     cfg,
		observable: observable,
		logger:     logger,
	}, nil
}

// RollbackHistory returns the rollback records for this executor.
func (e *Executor) RollbackHistory() []RollbackRecord {
	return e.rollback.History()
}

// Execute runs both passes and returns the final result.
//
// Description:
//
//	Runs the first pass under the retry policy; terminal failure fails
//	the whole run (ErrFirstPassFailed). Captures a memento of the
//	first pass, seeds the second pass's context with the first pass's
//	learnings/insights/artifacts, runs the second pass, computes the
//	delta, and rolls back to the first pass's result when auto-rollback
//	is enabled and the quality delta falls below the threshold. A
//	second-pass terminal failure also falls back to the first pass.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	pctx - The shared pipeline context.
//	runID - Identifies the run for event correlation.
//
// Outputs:
//
//	*PassResult - The accepted pass's result.
//	PassDelta - The computed comparison (zero value when the second
//	            pass never produced a result).
//	error - ErrFirstPassFailed wrapping the last first-pass error.
func (e *Executor) Execute(ctx context.Context, pctx stage.Context, runID string) (*PassResult, PassDelta, error) {
	firstResult, err := e.runPass(ctx, e.first, pctx)
	if err != nil {
		return nil, PassDelta{}, fmt.Errorf("%w: %w", ErrFirstPassFailed, err)
	}
	e.notifyPass(event.PassCompleted, runID, firstResult)

	memento, err := e.rollback.Capture(firstResult, map[string]any(pctx))
	if err != nil {
		return nil, PassDelta{}, fmt.Errorf("capture first-pass memento: %w", err)
	}

	secondCtx := pctx.Clone()
	secondCtx[KeyFirstPassLearnings] = memento.Learnings
	secondCtx[KeyFirstPassInsights] = memento.Insights
	secondCtx[KeyFirstPassArtifacts] = memento.Artifacts

	secondResult, err := e.runPass(ctx, e.second, secondCtx)
	if err != nil {
		e.logger.Warn("second pass failed, keeping first pass",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		if _, rerr := e.rollback.Restore("second pass failed: " + err.Error()); rerr != nil {
			e.logger.Error("rollback failed", slog.String("error", rerr.Error()))
		}
		e.notifyRollback(runID, firstResult, PassDelta{})
		return firstResult, PassDelta{}, nil
	}
	e.notifyPass(event.PassCompleted, runID, secondResult)

	delta := e.comparator.Compare(firstResult, secondResult)

	if e.config.AutoRollback && delta.QualityDelta < e.config.RollbackThreshold {
		reason := fmt.Sprintf("quality delta %.3f below threshold %.3f", delta.QualityDelta, e.config.RollbackThreshold)
		if _, rerr := e.rollback.Restore(reason); rerr != nil {
			e.logger.Error("rollback failed", slog.String("error", rerr.Error()))
		}
		e.logger.Info("second pass rolled back",
			slog.String("run_id", runID),
			slog.Float64("first_quality", firstResult.QualityScore),
			slog.Float64("second_quality", secondResult.QualityScore),
		)
		e.notifyRollback(runID, firstResult, delta)
		return firstResult, delta, nil
	}

	return secondResult, delta, nil
}

// runPass executes one pass under the retry policy.
func (e *Executor) runPass(ctx context.Context, s Strategy, pctx stage.Context) (*PassResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result, err := s.Execute(ctx, pctx)

		if err == nil && result != nil && result.Success {
			result.PassName = s.Name()
			result.ExecutionTime = time.Since(start)
			if result.Timestamp.IsZero() {
				result.Timestamp = time.Now()
			}
			return result, nil
		}

		switch {
		case err != nil:
			lastErr = err
		case result != nil:
			lastErr = fmt.Errorf("pass %s reported failure: %v", s.Name(), result.Errors)
		default:
			lastErr = ErrNilResult
		}

		if !e.config.Retry.ShouldRetry(lastErr, attempt) {
			return nil, lastErr
		}
		e.logger.Warn("pass retrying",
			slog.String("pass", s.Name()),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if err := e.config.Retry.Sleep(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (e *Executor) notifyPass(t event.Type, runID string, result *PassResult) {
	e.observable.Notify(event.Event{
		Type:  t,
		RunID: runID,
		Data: map[string]any{
			"pass":          result.PassName,
			"quality_score": result.QualityScore,
		},
	})
}

func (e *Executor) notifyRollback(runID string, finalResult *PassResult, delta PassDelta) {
	e.observable.Notify(event.Event{
		Type:  event.PassRolledBack,
		RunID: runID,
		Data: map[string]any{
			"final_pass":    finalResult.PassName,
			"quality_delta": delta.QualityDelta,
		},
	})
}
