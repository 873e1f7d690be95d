// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dag models stage dependencies as a directed acyclic graph.
//
// The package provides the two scheduling primitives the pipeline engine
// needs: a deterministic topological sort (Kahn's algorithm) and a
// critical-path computation (CPM). Both are pure functions of the
// registered stage set, the static dependency edges and the static
// duration table.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent mutation. Build it in a single
// goroutine; after that, TopologicalSort and CriticalPath are read-only
// and safe to call concurrently.
package dag

import (
	"fmt"
	"time"
)

// Graph is the stage-dependency DAG.
//
// Stage registration order is preserved and acts as the FIFO tie-break
// among simultaneously-ready stages, so sorts are deterministic for a
// fixed insertion ordering.
type Graph struct {
	order     []string
	deps      map[string][]string
	durations map[string]time.Duration
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		deps:      make(map[string][]string),
		durations: make(map[string]time.Duration),
	}
}

// Add registers a stage with its dependency names and nominal duration.
//
// Inputs:
//
//	name - Stage name, unique within the graph.
//	deps - Names of stages that must complete first. May reference
//	       stages added later; existence is checked at sort time.
//	duration - Nominal duration for critical-path analysis.
//
// Outputs:
//
//	error - ErrDuplicateStage if the name is already registered.
func (g *Graph) Add(name string, deps []string, duration time.Duration) error {
	if _, exists := g.deps[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, name)
	}
	g.order = append(g.order, name)
	g.deps[name] = append([]string(nil), deps...)
	g.durations[name] = duration
	return nil
}

// Contains reports whether a stage is registered.
func (g *Graph) Contains(name string) bool {
	_, ok := g.deps[name]
	return ok
}

// Stages returns all registered stage names in insertion order.
func (g *Graph) Stages() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the declared dependencies of a stage.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// subset resolves the requested stage subset, defaulting to all stages,
// and validates that every member and in-set dependency is registered.
func (g *Graph) subset(stages []string) ([]string, map[string]bool, error) {
	if len(g.order) == 0 {
		return nil, nil, ErrEmptyGraph
	}

	if stages == nil {
		stages = g.order
	}

	inSet := make(map[string]bool, len(stages))
	for _, name := range stages {
		if !g.Contains(name) {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownStage, name)
		}
		inSet[name] = true
	}

	// Preserve insertion order for determinism regardless of the
	// caller's subset ordering.
	ordered := make([]string, 0, len(inSet))
	for _, name := range g.order {
		if inSet[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered, inSet, nil
}

// TopologicalSort orders the given stage subset so every stage appears
// after all of its in-set dependencies.
//
// Description:
//
//	Runs Kahn's algorithm restricted to the subset: repeatedly dequeue
//	zero-in-degree stages in FIFO order, decrement dependents'
//	in-degree, enqueue newly-zero stages. Dependencies outside the
//	subset are ignored (treated as already satisfied).
//
// Inputs:
//
//	stages - The subset to order. Nil means all registered stages.
//
// Outputs:
//
//	[]string - The topological order.
//	error - A *CycleError (wrapping ErrCycleDetected) if the subset
//	        contains a dependency cycle; ErrUnknownStage for
//	        unregistered names.
func (g *Graph) TopologicalSort(stages []string) ([]string, error) {
	ordered, inSet, err := g.subset(stages)
	if err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(ordered))
	dependents := make(map[string][]string, len(ordered))
	for _, name := range ordered {
		for _, dep := range g.deps[name] {
			if !inSet[dep] {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	queue := make([]string, 0, len(ordered))
	for _, name := range ordered {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	sorted := make([]string, 0, len(ordered))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) < len(ordered) {
		remaining := make([]string, 0, len(ordered)-len(sorted))
		placed := make(map[string]bool, len(sorted))
		for _, name := range sorted {
			placed[name] = true
		}
		for _, name := range ordered {
			if !placed[name] {
				remaining = append(remaining, name)
			}
		}
		return nil, NewCycleError(remaining)
	}

	return sorted, nil
}

// CriticalPath computes the CPM critical path through the stage subset.
//
// Description:
//
//	Forward pass computes each stage's earliest start as the max of
//	(dependency earliest start + dependency duration) over in-set
//	dependencies. Backward pass computes latest start, seeded from
//	(total - own duration) for stages with no in-set dependents. The
//	critical path is every stage whose earliest start equals its
//	latest start, in topological order.
//
// Inputs:
//
//	stages - The subset to analyze. Nil means all registered stages.
//
// Outputs:
//
//	[]string - The critical path, topologically ordered.
//	time.Duration - Total duration: the length of the longest
//	                dependency chain by summed durations.
//	error - Cycle or unknown-stage errors, as for TopologicalSort.
func (g *Graph) CriticalPath(stages []string) ([]string, time.Duration, error) {
	sorted, err := g.TopologicalSort(stages)
	if err != nil {
		return nil, 0, err
	}

	inSet := make(map[string]bool, len(sorted))
	for _, name := range sorted {
		inSet[name] = true
	}

	dependents := make(map[string][]string, len(sorted))
	for _, name := range sorted {
		for _, dep := range g.deps[name] {
			if inSet[dep] {
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	// Forward pass: earliest start times.
	earliest := make(map[string]time.Duration, len(sorted))
	var total time.Duration
	for _, name := range sorted {
		var start time.Duration
		for _, dep := range g.deps[name] {
			if !inSet[dep] {
				continue
			}
			if finish := earliest[dep] + g.durations[dep]; finish > start {
				start = finish
			}
		}
		earliest[name] = start
		if finish := start + g.durations[name]; finish > total {
			total = finish
		}
	}

	// Backward pass: latest start times.
	latest := make(map[string]time.Duration, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		name := sorted[i]
		if len(dependents[name]) == 0 {
			latest[name] = total - g.durations[name]
			continue
		}
		var min time.Duration = -1
		for _, dep := range dependents[name] {
			if slack := latest[dep] - g.durations[name]; min < 0 || slack < min {
				min = slack
			}
		}
		latest[name] = min
	}

	path := make([]string, 0, len(sorted))
	for _, name := range sorted {
		if earliest[name] == latest[name] {
			path = append(path, name)
		}
	}

	return path, total, nil
}
