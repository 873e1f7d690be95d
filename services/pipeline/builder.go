// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline assembles and executes dynamic stage pipelines.
//
// A Builder accumulates stages, a selection strategy, a retry policy
// and concurrency settings, validates the configuration, and produces
// a Pipeline whose lifecycle is guarded by the lifecycle state machine.
package pipeline

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/executor"
	"github.com/redmage123/artemis-sub007/services/pipeline/lifecycle"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// Builder accumulates pipeline configuration before Build.
//
// Not safe for concurrent use; configure and build from one goroutine.
type Builder struct {
	name       string
	stages     []stage.Stage
	strategy   SelectionStrategy
	policy     retry.Policy
	observable *event.Observable
	logger     *slog.Logger
	parallel   bool
	maxWorkers int
	initialCtx stage.Context
}

// NewBuilder creates a builder with the default retry policy, the
// select-all strategy and sequential execution.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:       name,
		strategy:   SelectAll{},
		policy:     retry.DefaultPolicy(),
		maxWorkers: 4,
		initialCtx: stage.Context{},
	}
}

// AddStage appends a stage. Order is preserved for deterministic
// topological tie-breaking.
func (b *Builder) AddStage(s stage.Stage) *Builder {
	b.stages = append(b.stages, s)
	return b
}

// AddStages appends several stages in order.
func (b *Builder) AddStages(stages ...stage.Stage) *Builder {
	b.stages = append(b.stages, stages...)
	return b
}

// WithStrategy sets the stage-selection strategy.
func (b *Builder) WithStrategy(s SelectionStrategy) *Builder {
	if s != nil {
		b.strategy = s
	}
	return b
}

// WithRetryPolicy sets the retry policy shared by all stages.
func (b *Builder) WithRetryPolicy(p retry.Policy) *Builder {
	b.policy = p
	return b
}

// WithObservable sets the event bus. Nil keeps the default.
func (b *Builder) WithObservable(obs *event.Observable) *Builder {
	b.observable = obs
	return b
}

// WithLogger sets the logger used by the pipeline and its executors.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithParallelism enables dependency-respecting concurrent execution
// with the given worker bound.
func (b *Builder) WithParallelism(maxWorkers int) *Builder {
	b.parallel = true
	b.maxWorkers = maxWorkers
	return b
}

// WithInitialContext sets the context handed to every stage.
func (b *Builder) WithInitialContext(pctx stage.Context) *Builder {
	if pctx != nil {
		b.initialCtx = pctx
	}
	return b
}

// Build validates the configuration and assembles the pipeline.
//
// Description:
//
//	Validation order: (1) at least one stage; (2) no duplicate stage
//	names, listing the duplicates; (3) every declared dependency
//	exists within the selected stage set, listing the dangling names.
//	On success constructs the executors and transitions the lifecycle
//	CREATED → READY.
//
// Outputs:
//
//	*Pipeline - The assembled, READY pipeline.
//	error - ErrNoStages, ErrDuplicateStages, ErrDanglingDependencies,
//	        or an executor construction error (invalid retry policy,
//	        bad worker count).
func (b *Builder) Build() (*Pipeline, error) {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := b.observable
	if obs == nil {
		obs = event.NewObservable(logger)
	}

	selected := b.strategy.Select(b.stages, b.initialCtx)

	if len(selected) == 0 {
		return nil, fmt.Errorf("pipeline %q: %w", b.name, ErrNoStages)
	}
	for _, s := range selected {
		if s == nil {
			return nil, fmt.Errorf("pipeline %q: %w", b.name, ErrNilStage)
		}
	}

	if dups := duplicateNames(selected); len(dups) > 0 {
		return nil, fmt.Errorf("pipeline %q: %w: %v", b.name, ErrDuplicateStages, dups)
	}
	if dangling := danglingDependencies(selected); len(dangling) > 0 {
		return nil, fmt.Errorf("pipeline %q: %w: %v", b.name, ErrDanglingDependencies, dangling)
	}

	exec, err := executor.NewStageExecutor(b.policy, obs, logger)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", b.name, err)
	}

	var parallel *executor.ParallelStageExecutor
	if b.parallel {
		parallel, err = executor.NewParallelStageExecutor(exec, b.maxWorkers, logger)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", b.name, err)
		}
	}

	lc := lifecycle.NewManager(obs, logger)
	if err := lc.TransitionToReady(); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", b.name, err)
	}

	logger.Info("pipeline built",
		slog.String("pipeline", b.name),
		slog.Int("stages", len(selected)),
		slog.String("strategy", b.strategy.Name()),
		slog.Bool("parallel", b.parallel),
	)

	return &Pipeline{
		name:       b.name,
		stages:     selected,
		lifecycle:  lc,
		executor:   exec,
		parallel:   parallel,
		observable: obs,
		logger:     logger,
		pctx:       b.initialCtx,
	}, nil
}

// duplicateNames returns stage names seen more than once, sorted.
func duplicateNames(stages []stage.Stage) []string {
	seen := make(map[string]int, len(stages))
	for _, s := range stages {
		seen[s.Name()]++
	}
	var dups []string
	for name, n := range seen {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}

// danglingDependencies returns declared dependencies that name no
// stage in the set, sorted.
func danglingDependencies(stages []stage.Stage) []string {
	names := make(map[string]bool, len(stages))
	for _, s := range stages {
		names[s.Name()] = true
	}
	missing := make(map[string]bool)
	for _, s := range stages {
		for _, dep := range s.Dependencies() {
			if !names[dep] {
				missing[dep] = true
			}
		}
	}
	var out []string
	for name := range missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
