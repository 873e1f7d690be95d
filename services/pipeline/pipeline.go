// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redmage123/artemis-sub007/services/pipeline/dag"
	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/executor"
	"github.com/redmage123/artemis-sub007/services/pipeline/lifecycle"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// Pipeline is an assembled, executable stage pipeline.
//
// Built by Builder.Build; starts in the READY lifecycle state.
// Execute may be called once per Pipeline instance; the lifecycle
// state machine rejects re-entrant execution.
//
// Thread Safety:
//
//	Safe for concurrent use. Stage-set mutation is rejected while the
//	pipeline runs.
type Pipeline struct {
	name       string
	lifecycle  *lifecycle.Manager
	executor   *executor.StageExecutor
	parallel   *executor.ParallelStageExecutor
	observable *event.Observable
	logger     *slog.Logger
	pctx       stage.Context

	mu     sync.Mutex
	stages []stage.Stage
}

// Name returns the pipeline's name.
func (p *Pipeline) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Pipeline) State() lifecycle.State { return p.lifecycle.State() }

// Lifecycle returns the pipeline's lifecycle manager.
func (p *Pipeline) Lifecycle() *lifecycle.Manager { return p.lifecycle }

// Observable returns the pipeline's event bus.
func (p *Pipeline) Observable() *event.Observable { return p.observable }

// Stages returns the current stage names in insertion order.
func (p *Pipeline) Stages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Execute runs the pipeline to completion.
//
// Description:
//
//	Enforces the READY precondition via the lifecycle manager, runs
//	the stages (sequentially in topological order, or concurrently
//	when parallelism was enabled at build time), aggregates results
//	into a name-keyed map and marks the lifecycle COMPLETED or FAILED.
//	Stage failures do not produce a Go error; inspect the result map.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	runID - Identifies the pipeline run for event correlation.
//
// Outputs:
//
//	map[string]*stage.Result - Result per stage name.
//	error - Non-nil only for lifecycle violations (not READY) or
//	        configuration errors surfaced at execution time (cycle
//	        introduced by runtime mutation).
func (p *Pipeline) Execute(ctx context.Context, runID string) (map[string]*stage.Result, error) {
	if err := p.lifecycle.StartExecution(runID); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", p.name, err)
	}

	p.mu.Lock()
	stages := make([]stage.Stage, len(p.stages))
	copy(stages, p.stages)
	p.mu.Unlock()

	p.logger.Info("pipeline execution started",
		slog.String("pipeline", p.name),
		slog.String("run_id", runID),
		slog.Int("stages", len(stages)),
		slog.Bool("parallel", p.parallel != nil),
	)

	var results map[string]*stage.Result
	var err error
	if p.parallel != nil {
		results, err = p.parallel.ExecuteStagesParallel(ctx, stages, p.pctx, runID)
	} else {
		results, err = p.executeSequential(ctx, stages, runID)
	}
	if err != nil {
		_ = p.lifecycle.MarkError(runID, err)
		return nil, fmt.Errorf("pipeline %q: %w", p.name, err)
	}

	failures := make(map[string]error)
	for name, res := range results {
		if !res.Success {
			failures[name] = res.Err
		}
	}

	if len(failures) > 0 {
		_ = p.lifecycle.MarkFailed(runID, failures)
	} else {
		_ = p.lifecycle.MarkCompleted(runID, len(results))
	}
	return results, nil
}

// executeSequential runs stages one at a time in topological order.
// A failed stage blocks its descendants but independent stages still
// run, matching the parallel executor's semantics.
func (p *Pipeline) executeSequential(ctx context.Context, stages []stage.Stage, runID string) (map[string]*stage.Result, error) {
	graph := dag.NewGraph()
	byName := make(map[string]stage.Stage, len(stages))
	for _, s := range stages {
		if err := graph.Add(s.Name(), s.Dependencies(), s.EstimatedDuration()); err != nil {
			return nil, err
		}
		byName[s.Name()] = s
	}

	order, err := graph.TopologicalSort(nil)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*stage.Result, len(order))
	for _, name := range order {
		blockedBy := ""
		for _, dep := range graph.Dependencies(name) {
			if res, ok := results[dep]; ok && !res.Success {
				blockedBy = dep
				break
			}
		}
		if blockedBy != "" {
			results[name] = stage.Fail(name, fmt.Errorf("%w: %s", executor.ErrDependencyFailed, blockedBy))
			continue
		}
		results[name] = p.executor.ExecuteStage(ctx, byName[name], p.pctx, runID)
	}
	return results, nil
}

// Pause suspends the pipeline (RUNNING → PAUSED).
func (p *Pipeline) Pause(runID string) error {
	return p.lifecycle.Pause(runID)
}

// Resume continues a paused pipeline (PAUSED → RUNNING).
func (p *Pipeline) Resume(runID string) error {
	return p.lifecycle.Resume(runID)
}

// AddStage adds a stage at runtime.
//
// Description:
//
//	Rejected while the pipeline is RUNNING. The mutated stage set is
//	re-validated (duplicates, dangling dependencies) before the change
//	is applied; a rejected mutation leaves the stage set untouched.
//
// Outputs:
//
//	error - ErrModificationLocked, ErrNilStage, ErrDuplicateStages or
//	        ErrDanglingDependencies.
func (p *Pipeline) AddStage(s stage.Stage) error {
	if err := p.lifecycle.ValidateStageModification("add_stage"); err != nil {
		return err
	}
	if s == nil {
		return ErrNilStage
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	candidate := append(append([]stage.Stage{}, p.stages...), s)
	if dups := duplicateNames(candidate); len(dups) > 0 {
		return fmt.Errorf("add_stage: %w: %v", ErrDuplicateStages, dups)
	}
	if dangling := danglingDependencies(candidate); len(dangling) > 0 {
		return fmt.Errorf("add_stage: %w: %v", ErrDanglingDependencies, dangling)
	}

	p.stages = candidate
	p.logger.Info("stage added", slog.String("pipeline", p.name), slog.String("stage", s.Name()))
	return nil
}

// RemoveStage removes a stage by name at runtime.
//
// Description:
//
//	Rejected while the pipeline is RUNNING, when the stage does not
//	exist, or when removal would leave another stage's dependency
//	dangling.
func (p *Pipeline) RemoveStage(name string) error {
	if err := p.lifecycle.ValidateStageModification("remove_stage"); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, s := range p.stages {
		if s.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("remove_stage: %w: %s", ErrStageNotFound, name)
	}

	candidate := append(append([]stage.Stage{}, p.stages[:idx]...), p.stages[idx+1:]...)
	if dangling := danglingDependencies(candidate); len(dangling) > 0 {
		return fmt.Errorf("remove_stage: %w: %v", ErrDanglingDependencies, dangling)
	}

	p.stages = candidate
	p.logger.Info("stage removed", slog.String("pipeline", p.name), slog.String("stage", name))
	return nil
}

// Plan returns the topological execution order and the critical path
// of the current stage set.
func (p *Pipeline) Plan() (order []string, critical []string, err error) {
	p.mu.Lock()
	stages := make([]stage.Stage, len(p.stages))
	copy(stages, p.stages)
	p.mu.Unlock()

	graph := dag.NewGraph()
	for _, s := range stages {
		if err := graph.Add(s.Name(), s.Dependencies(), s.EstimatedDuration()); err != nil {
			return nil, nil, err
		}
	}
	order, err = graph.TopologicalSort(nil)
	if err != nil {
		return nil, nil, err
	}
	critical, _, err = graph.CriticalPath(nil)
	if err != nil {
		return nil, nil, err
	}
	return order, critical, nil
}
