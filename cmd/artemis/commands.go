// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	parallel   bool
	maxWorkers int

	rootCmd = &cobra.Command{
		Use:   "artemis",
		Short: "A dynamic pipeline execution engine for LLM-driven software development",
		Long: `Artemis orchestrates multi-stage software development pipelines:
dependency-ordered stage execution with retries, optional parallelism,
two-pass refinement with rollback, and resumable checkpoints.`,
	}

	runCmd = &cobra.Command{
		Use:   "run [task-id]",
		Short: "Execute the development pipeline for a task",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPipeline, // Defined in cmd_pipeline.go
	}

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Print the stage execution order and critical path",
		RunE:  runPlan, // Defined in cmd_pipeline.go
	}

	resumeCmd = &cobra.Command{
		Use:   "resume [task-id]",
		Short: "Show checkpoint progress for a previously interrupted task",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume, // Defined in cmd_pipeline.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "artemis.yaml", "Path to the pipeline config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	runCmd.Flags().BoolVar(&parallel, "parallel", false, "Run independent stages concurrently")
	runCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Worker bound for parallel execution (0 = from config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(resumeCmd)
}
