// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/redmage123/artemis-sub007/pkg/logging"
	"github.com/redmage123/artemis-sub007/services/pipeline"
	"github.com/redmage123/artemis-sub007/services/pipeline/config"
	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
	"github.com/redmage123/artemis-sub007/services/pipeline/statemachine"
)

// defaultStages builds the canonical development pipeline. Stage bodies
// here only mark progress in the context; real deployments register
// their own implementations through the pipeline builder.
func defaultStages() []stage.Stage {
	mark := func(name string, deps []string, d time.Duration) stage.Stage {
		return stage.NewFuncStage(name, deps,
			func(_ context.Context, pctx stage.Context) (*stage.Result, error) {
				pctx[name+"_done"] = true
				return stage.OK(name, nil), nil
			}).WithEstimatedDuration(d)
	}

	return []stage.Stage{
		mark("requirements", nil, 30*time.Second),
		mark("architecture", []string{"requirements"}, 2*time.Minute),
		mark("development", []string{"architecture"}, 10*time.Minute),
		mark("code_review", []string{"development"}, 3*time.Minute),
		mark("testing", []string{"development"}, 5*time.Minute),
		mark("documentation", []string{"code_review", "testing"}, 2*time.Minute),
	}
}

func newLogger() (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "artemis",
	})
}

func runPipeline(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	id := "task-" + uuid.NewString()[:12]
	if len(args) > 0 {
		id = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := event.NewObservable(logger.Logger)
	obs.Attach(event.NewLoggingObserver(logger.Logger))
	metrics, err := event.NewMetricsObserver(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	obs.Attach(metrics)

	stages := defaultStages()

	var machine *statemachine.Machine
	if cfg.Checkpoint.Enabled {
		store, err := statemachine.NewCheckpointStore(cfg.Checkpoint.Dir)
		if err != nil {
			return err
		}
		machine, err = statemachine.NewMachine(id,
			statemachine.WithCheckpointStore(store),
			statemachine.WithTotalStages(len(stages)),
			statemachine.WithLogger(logger.Logger),
		)
		if err != nil {
			return err
		}
		obs.Attach(stageTracker{machine: machine})
	}

	builder := pipeline.NewBuilder("artemis").
		AddStages(stages...).
		WithRetryPolicy(cfg.RetryPolicy()).
		WithObservable(obs).
		WithLogger(logger.Logger)

	useParallel := parallel || cfg.Parallel.Enabled
	if useParallel {
		workers := maxWorkers
		if workers <= 0 {
			workers = cfg.Parallel.MaxWorkers
		}
		builder = builder.WithParallelism(workers)
	}

	p, err := builder.Build()
	if err != nil {
		return err
	}

	if machine != nil {
		if err := machine.TransitionTo(statemachine.TaskRunning, "pipeline started"); err != nil {
			return err
		}
	}

	runID := uuid.NewString()[:12]
	results, err := p.Execute(ctx, runID)
	if err != nil {
		return err
	}

	failed := 0
	for name, res := range results {
		status := "ok"
		switch {
		case res.Skipped:
			status = "skipped"
		case !res.Success:
			status = "FAILED"
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s", name, status)
		if res.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  (%v)", res.Err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	if machine != nil {
		target := statemachine.TaskCompleted
		if failed > 0 {
			target = statemachine.TaskFailed
		}
		if err := machine.TransitionTo(target, "pipeline finished"); err != nil {
			return err
		}
		if err := machine.CreateCheckpoint(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d stages failed", failed, len(results))
	}
	return nil
}

// stageTracker mirrors stage events into the task state machine so
// checkpoints stay current.
type stageTracker struct {
	machine *statemachine.Machine
}

func (t stageTracker) OnEvent(e event.Event) {
	switch e.Type {
	case event.StageStarted:
		t.machine.StartStage(e.StageName)
	case event.StageCompleted:
		_ = t.machine.CompleteStage(e.StageName, "completed")
	case event.StageFailed:
		_ = t.machine.FailStage(e.StageName, e.Err)
	}
}

func runPlan(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	p, err := pipeline.NewBuilder("artemis").
		AddStages(defaultStages()...).
		WithLogger(logger.Logger).
		Build()
	if err != nil {
		return err
	}

	order, critical, err := p.Plan()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Execution order:")
	for i, name := range order {
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, name)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nCritical path:")
	for _, name := range critical {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
	}
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := statemachine.NewCheckpointStore(cfg.Checkpoint.Dir)
	if err != nil {
		return err
	}

	id := args[0]
	progress, err := store.GetProgress(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Task %s (saved %s)\n", id, progress.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(cmd.OutOrStdout(), "Progress: %.0f%% (%d/%d stages)\n",
		progress.Fraction*100, len(progress.CompletedStages), progress.TotalStages)
	for _, name := range progress.CompletedStages {
		fmt.Fprintf(cmd.OutOrStdout(), "  done:   %s\n", name)
	}
	for _, name := range progress.FailedStages {
		fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", name)
	}
	return nil
}
