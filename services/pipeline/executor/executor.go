// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package executor runs pipeline stages with retry, skip logic and
// observability.
//
// StageExecutor executes one stage at a time under a retry policy.
// ParallelStageExecutor layers dependency-respecting concurrent
// scheduling on top of it.
//
// Failure semantics: stage errors are caught and converted into a
// failed stage.Result, never propagated. Only construction-time
// configuration errors (invalid retry policy, bad worker count)
// surface as Go errors.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

var (
	tracer = otel.Tracer("artemis.pipeline")
	meter  = otel.Meter("artemis.pipeline")
)

// StageExecutor executes a single stage with retry/backoff and skip
// logic, emitting events to the observable.
//
// Thread Safety:
//
//	StageExecutor is safe for concurrent use; it holds no per-run state.
type StageExecutor struct {
	policy     retry.Policy
	observable *event.Observable
	logger     *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce    sync.Once
	stageLatency   metric.Float64Histogram
	stageSuccesses metric.Int64Counter
	stageFailures  metric.Int64Counter
	stageRetries   metric.Int64Counter
	activeStages   metric.Int64UpDownCounter
}

// NewStageExecutor creates a stage executor.
//
// Inputs:
//
//	policy - Retry policy shared by all stage executions. Validated
//	         here; an invalid policy fails fast at construction time.
//	observable - Event bus for stage events. Nil creates a bus with
//	             no observers.
//	logger - Logger for execution logs. If nil, uses slog.Default().
//
// Outputs:
//
//	*StageExecutor - The configured executor.
//	error - Non-nil if the retry policy is invalid.
func NewStageExecutor(policy retry.Policy, observable *event.Observable, logger *slog.Logger) (*StageExecutor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("stage executor: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observable == nil {
		observable = event.NewObservable(logger)
	}

	return &StageExecutor{
		policy:     policy,
		observable: observable,
		logger:     logger,
	}, nil
}

// Observable returns the executor's event bus.
func (e *StageExecutor) Observable() *event.Observable {
	return e.observable
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution.
func (e *StageExecutor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.stageLatency, err = meter.Float64Histogram("pipeline_stage_duration_seconds",
			metric.WithDescription("Time spent executing each pipeline stage"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_latency: "+err.Error())
		}

		e.stageSuccesses, err = meter.Int64Counter("pipeline_stage_success_total",
			metric.WithDescription("Number of successful stage executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_successes: "+err.Error())
		}

		e.stageFailures, err = meter.Int64Counter("pipeline_stage_failure_total",
			metric.WithDescription("Number of failed stage executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_failures: "+err.Error())
		}

		e.stageRetries, err = meter.Int64Counter("pipeline_stage_retry_total",
			metric.WithDescription("Number of stage retry attempts"),
		)
		if err != nil {
			initErrors = append(initErrors, "stage_retries: "+err.Error())
		}

		e.activeStages, err = meter.Int64UpDownCounter("pipeline_active_stages",
			metric.WithDescription("Number of currently executing stages"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_stages: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// ExecuteStage runs one stage with retry/backoff and skip logic.
//
// Description:
//
//	Evaluates the stage's conditional-execution predicate first; a
//	false predicate yields a skipped (successful) result with no
//	started event. Otherwise runs a retry loop bounded by
//	MaxRetries+1 total attempts, sleeping the policy's backoff
//	between attempts. Stage errors are converted to a failed result,
//	never propagated.
//
// Inputs:
//
//	ctx - Context for cancellation. A canceled context during backoff
//	      aborts the retry loop and fails the stage.
//	s - The stage to execute.
//	pctx - The pipeline context handed to the stage.
//	runID - Identifies the pipeline run for event correlation.
//
// Outputs:
//
//	*stage.Result - Always non-nil.
func (e *StageExecutor) ExecuteStage(ctx context.Context, s stage.Stage, pctx stage.Context, runID string) *stage.Result {
	e.initMetrics()

	if s == nil {
		return stage.Fail("", ErrNilStage)
	}
	name := s.Name()

	ctx, span := tracer.Start(ctx, "pipeline.Stage",
		trace.WithAttributes(
			attribute.String("pipeline.stage", name),
			attribute.StringSlice("pipeline.dependencies", s.Dependencies()),
			attribute.String("pipeline.run_id", runID),
		),
	)
	defer span.End()

	if !s.ShouldExecute(pctx) {
		span.AddEvent("stage_skipped")
		e.observable.Notify(event.Event{
			Type:      event.StageSkipped,
			RunID:     runID,
			StageName: name,
		})
		e.logger.Info("stage skipped",
			slog.String("stage", name),
			slog.String("run_id", runID),
		)
		return stage.Skip(name)
	}

	if e.activeStages != nil {
		e.activeStages.Add(ctx, 1)
		defer e.activeStages.Add(ctx, -1)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		e.observable.Notify(event.Event{
			Type:      event.StageStarted,
			RunID:     runID,
			StageName: name,
			Data:      map[string]any{"attempt": attempt},
		})

		start := time.Now()
		result, err := s.Execute(ctx, pctx)
		duration := time.Since(start)

		if e.stageLatency != nil {
			e.stageLatency.Record(ctx, duration.Seconds(),
				metric.WithAttributes(attribute.String("stage", name)),
			)
		}

		if err == nil && result != nil && result.Success {
			result.StageName = name
			result.Duration = duration
			result.RetryCount = attempt

			if e.stageSuccesses != nil {
				e.stageSuccesses.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", name)))
			}
			span.SetStatus(codes.Ok, "")

			e.observable.Notify(event.Event{
				Type:      event.StageCompleted,
				RunID:     runID,
				StageName: name,
				Data: map[string]any{
					"attempt":          attempt,
					"duration_seconds": duration.Seconds(),
				},
			})
			e.logger.Info("stage completed",
				slog.String("stage", name),
				slog.String("run_id", runID),
				slog.Duration("duration", duration),
				slog.Int("retries", attempt),
			)
			return result
		}

		// Normalize the three failure shapes: error, failed result,
		// nil result with nil error.
		switch {
		case err != nil:
			lastErr = err
		case result != nil && result.Err != nil:
			lastErr = result.Err
		case result != nil:
			lastErr = fmt.Errorf("stage %s reported failure", name)
		default:
			lastErr = ErrNilResult
		}

		if e.policy.ShouldRetry(lastErr, attempt) {
			delay := e.policy.Delay(attempt)

			if e.stageRetries != nil {
				e.stageRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", name)))
			}
			span.AddEvent("stage_retrying", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.String("error", lastErr.Error()),
			))

			e.observable.Notify(event.Event{
				Type:      event.StageRetrying,
				RunID:     runID,
				StageName: name,
				Err:       lastErr,
				Data: map[string]any{
					"attempt":       attempt,
					"delay_seconds": delay.Seconds(),
				},
			})
			e.logger.Warn("stage retrying",
				slog.String("stage", name),
				slog.String("run_id", runID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
			case <-timer.C:
				continue
			}
		}

		// Retries exhausted, policy refused, or context canceled.
		if e.stageFailures != nil {
			e.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", name)))
		}
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())

		failed := stage.Fail(name, lastErr)
		failed.RetryCount = attempt
		failed.Duration = duration

		e.observable.Notify(event.Event{
			Type:      event.StageFailed,
			RunID:     runID,
			StageName: name,
			Err:       lastErr,
			Data:      map[string]any{"retries": attempt},
		})
		e.logger.Error("stage failed",
			slog.String("stage", name),
			slog.String("run_id", runID),
			slog.Int("retries", attempt),
			slog.String("error", lastErr.Error()),
		)
		return failed
	}
}
