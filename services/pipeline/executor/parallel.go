// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/redmage123/artemis-sub007/services/pipeline/dag"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// ParallelStageExecutor executes a stage set respecting dependency
// order, running independent stages concurrently on a bounded worker
// pool.
//
// Thread Safety:
//
//	Safe for concurrent use; per-run state lives on the stack of
//	ExecuteStagesParallel.
type ParallelStageExecutor struct {
	exec       *StageExecutor
	maxWorkers int64
	logger     *slog.Logger
}

// NewParallelStageExecutor creates a parallel executor wrapping exec.
//
// Inputs:
//
//	exec - The single-stage executor used for each stage.
//	maxWorkers - Upper bound on concurrently executing stages.
//
// Outputs:
//
//	*ParallelStageExecutor - The configured executor.
//	error - ErrInvalidWorkers for a non-positive worker count,
//	        ErrNilStage for a nil inner executor.
func NewParallelStageExecutor(exec *StageExecutor, maxWorkers int, logger *slog.Logger) (*ParallelStageExecutor, error) {
	if exec == nil {
		return nil, fmt.Errorf("parallel executor: %w", ErrNilStage)
	}
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("parallel executor: %w: %d", ErrInvalidWorkers, maxWorkers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ParallelStageExecutor{
		exec:       exec,
		maxWorkers: int64(maxWorkers),
		logger:     logger,
	}, nil
}

// stageStatus tracks per-stage scheduling state within one run.
type stageStatus int

const (
	statusPending stageStatus = iota
	statusSucceeded
	statusFailed
	statusBlocked
)

// ExecuteStagesParallel runs the given stages concurrently while
// honoring dependency order.
//
// Description:
//
//	Validates the stage set with a topological sort (a cycle fails
//	immediately). Then repeatedly computes the ready frontier (stages
//	whose in-set dependencies all succeeded or were skipped) and runs
//	it on a semaphore-bounded worker pool. Stages downstream of a
//	failure are never scheduled; they are recorded as failed with
//	ErrDependencyFailed. Independent stages continue to completion.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	stages - The stage set to execute.
//	pctx - The shared pipeline context. Stages must only write keys
//	       they own; the engine does not mediate concurrent writes.
//	runID - Identifies the pipeline run for event correlation.
//
// Outputs:
//
//	map[string]*stage.Result - Result per stage name, complete for
//	                           every input stage on success paths.
//	error - Non-nil only for configuration errors (cycle, nil input);
//	        stage failures are reported via the result map.
func (p *ParallelStageExecutor) ExecuteStagesParallel(
	ctx context.Context,
	stages []stage.Stage,
	pctx stage.Context,
	runID string,
) (map[string]*stage.Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	byName := make(map[string]stage.Stage, len(stages))
	graph := dag.NewGraph()
	for _, s := range stages {
		if s == nil {
			return nil, ErrNilStage
		}
		if err := graph.Add(s.Name(), s.Dependencies(), s.EstimatedDuration()); err != nil {
			return nil, err
		}
		byName[s.Name()] = s
	}

	order, err := graph.TopologicalSort(nil)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "pipeline.ParallelStages",
		trace.WithAttributes(
			attribute.String("pipeline.run_id", runID),
			attribute.Int("pipeline.stage_count", len(order)),
			attribute.Int64("pipeline.max_workers", p.maxWorkers),
		),
	)
	defer span.End()

	start := time.Now()
	p.logger.Info("parallel execution started",
		slog.String("run_id", runID),
		slog.Int("stages", len(order)),
		slog.Int64("max_workers", p.maxWorkers),
	)

	status := make(map[string]stageStatus, len(order))
	results := make(map[string]*stage.Result, len(order))
	var mu sync.Mutex

	sem := semaphore.NewWeighted(p.maxWorkers)

	for {
		// Propagate failures: a pending stage with a failed or blocked
		// in-set dependency will never become ready.
		for _, name := range order {
			if status[name] != statusPending {
				continue
			}
			for _, dep := range graph.Dependencies(name) {
				if _, inSet := byName[dep]; !inSet {
					continue
				}
				if status[dep] == statusFailed || status[dep] == statusBlocked {
					status[name] = statusBlocked
					results[name] = stage.Fail(name, fmt.Errorf("%w: %s", ErrDependencyFailed, dep))
					p.logger.Warn("stage blocked by failed dependency",
						slog.String("stage", name),
						slog.String("dependency", dep),
						slog.String("run_id", runID),
					)
					break
				}
			}
		}

		frontier := p.readyFrontier(order, graph, byName, status)
		if len(frontier) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, name := range frontier {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context canceled while waiting for a worker slot.
				mu.Lock()
				status[name] = statusFailed
				results[name] = stage.Fail(name, err)
				mu.Unlock()
				continue
			}

			wg.Add(1)
			go func(s stage.Stage) {
				defer wg.Done()
				defer sem.Release(1)

				res := p.exec.ExecuteStage(ctx, s, pctx, runID)

				mu.Lock()
				results[s.Name()] = res
				if res.Success {
					status[s.Name()] = statusSucceeded
				} else {
					status[s.Name()] = statusFailed
				}
				mu.Unlock()
			}(byName[name])
		}
		wg.Wait()
	}

	duration := time.Since(start)
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}

	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d stages failed", failed))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	p.logger.Info("parallel execution finished",
		slog.String("run_id", runID),
		slog.Duration("duration", duration),
		slog.Int("executed", len(results)),
		slog.Int("failed", failed),
	)

	return results, nil
}

// readyFrontier returns pending stages whose in-set dependencies have
// all succeeded, in topological order.
func (p *ParallelStageExecutor) readyFrontier(
	order []string,
	graph *dag.Graph,
	byName map[string]stage.Stage,
	status map[string]stageStatus,
) []string {
	var ready []string
	for _, name := range order {
		if status[name] != statusPending {
			continue
		}
		allDone := true
		for _, dep := range graph.Dependencies(name) {
			if _, inSet := byName[dep]; !inSet {
				continue
			}
			if status[dep] != statusSucceeded {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, name)
		}
	}
	return ready
}
