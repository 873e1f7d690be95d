// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// SelectionStrategy chooses which of the configured stages actually
// run for a given pipeline context.
//
// The builder applies the strategy once, at build time, after
// dependency validation. Selection must be dependency-closed: if a
// selected stage depends on an unselected one, the build fails with
// ErrDanglingDependencies.
type SelectionStrategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// Select returns the subset of stages to run.
	Select(stages []stage.Stage, pctx stage.Context) []stage.Stage
}

// SelectAll runs every configured stage. This is the default strategy.
type SelectAll struct{}

// Name implements SelectionStrategy.
func (SelectAll) Name() string { return "select_all" }

// Select implements SelectionStrategy.
func (SelectAll) Select(stages []stage.Stage, _ stage.Context) []stage.Stage {
	return stages
}

// SelectNamed runs only the named stages.
//
// Useful for complexity-based selection where a caller decides a
// reduced stage set up front (e.g. skip code review and documentation
// for a trivial change).
type SelectNamed struct {
	Stages []string
}

// Name implements SelectionStrategy.
func (s SelectNamed) Name() string { return "select_named" }

// Select implements SelectionStrategy.
func (s SelectNamed) Select(stages []stage.Stage, _ stage.Context) []stage.Stage {
	wanted := make(map[string]bool, len(s.Stages))
	for _, name := range s.Stages {
		wanted[name] = true
	}
	var out []stage.Stage
	for _, st := range stages {
		if wanted[st.Name()] {
			out = append(out, st)
		}
	}
	return out
}
