// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"errors"
	"testing"
	"time"
)

func mustAdd(t *testing.T, g *Graph, name string, deps []string, d time.Duration) {
	t.Helper()
	if err := g.Add(name, deps, d); err != nil {
		t.Fatalf("Add(%s): %v", name, err)
	}
}

func indexOf(names []string, want string) int {
	for i, n := range names {
		if n == want {
			return i
		}
	}
	return -1
}

func TestTopologicalSort_DependenciesFirst(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "requirements", nil, time.Second)
	mustAdd(t, g, "architecture", []string{"requirements"}, time.Second)
	mustAdd(t, g, "development", []string{"architecture"}, time.Second)
	mustAdd(t, g, "code_review", []string{"development"}, time.Second)
	mustAdd(t, g, "testing", []string{"development"}, time.Second)
	mustAdd(t, g, "documentation", []string{"code_review", "testing"}, time.Second)

	sorted, err := g.TopologicalSort(nil)
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if len(sorted) != 6 {
		t.Fatalf("expected 6 stages, got %d", len(sorted))
	}

	for _, name := range sorted {
		for _, dep := range g.Dependencies(name) {
			if indexOf(sorted, dep) >= indexOf(sorted, name) {
				t.Errorf("dependency %s not before %s in %v", dep, name, sorted)
			}
		}
	}
}

func TestTopologicalSort_Deterministic(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "c", nil, time.Second)
	mustAdd(t, g, "a", nil, time.Second)
	mustAdd(t, g, "b", nil, time.Second)

	first, err := g.TopologicalSort(nil)
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}

	// FIFO tie-break over insertion order.
	want := []string{"c", "a", "b"}
	for i, name := range want {
		if first[i] != name {
			t.Fatalf("expected insertion order %v, got %v", want, first)
		}
	}

	for i := 0; i < 10; i++ {
		again, err := g.TopologicalSort(nil)
		if err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("sort not deterministic: %v vs %v", first, again)
			}
		}
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", []string{"b"}, time.Second)
	mustAdd(t, g, "b", []string{"a"}, time.Second)

	_, err := g.TopologicalSort(nil)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got: %v", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if len(cycleErr.Stages) != 2 {
		t.Errorf("expected both stages reported, got %v", cycleErr.Stages)
	}
}

func TestTopologicalSort_Subset(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", nil, time.Second)
	mustAdd(t, g, "b", []string{"a"}, time.Second)
	mustAdd(t, g, "c", []string{"b"}, time.Second)

	// Subset excludes "a"; b's out-of-set dependency is treated as
	// satisfied.
	sorted, err := g.TopologicalSort([]string{"c", "b"})
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if len(sorted) != 2 || sorted[0] != "b" || sorted[1] != "c" {
		t.Errorf("expected [b c], got %v", sorted)
	}
}

func TestTopologicalSort_UnknownStage(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", nil, time.Second)

	_, err := g.TopologicalSort([]string{"a", "ghost"})
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got: %v", err)
	}
}

func TestTopologicalSort_EmptyGraph(t *testing.T) {
	g := NewGraph()
	if _, err := g.TopologicalSort(nil); !errors.Is(err, ErrEmptyGraph) {
		t.Errorf("expected ErrEmptyGraph, got: %v", err)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", nil, time.Second)
	if err := g.Add("a", nil, time.Second); !errors.Is(err, ErrDuplicateStage) {
		t.Errorf("expected ErrDuplicateStage, got: %v", err)
	}
}

func TestCriticalPath_LinearChain(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", nil, 2*time.Second)
	mustAdd(t, g, "b", []string{"a"}, 3*time.Second)
	mustAdd(t, g, "c", []string{"b"}, 4*time.Second)

	path, total, err := g.CriticalPath(nil)
	if err != nil {
		t.Fatalf("CriticalPath: %v", err)
	}
	if total != 9*time.Second {
		t.Errorf("expected total 9s, got %v", total)
	}
	if len(path) != 3 || path[0] != "a" || path[1] != "b" || path[2] != "c" {
		t.Errorf("expected [a b c], got %v", path)
	}
}

func TestCriticalPath_Diamond(t *testing.T) {
	// a -> b (5s) -> d, a -> c (1s) -> d. Critical path goes through b.
	g := NewGraph()
	mustAdd(t, g, "a", nil, 1*time.Second)
	mustAdd(t, g, "b", []string{"a"}, 5*time.Second)
	mustAdd(t, g, "c", []string{"a"}, 1*time.Second)
	mustAdd(t, g, "d", []string{"b", "c"}, 2*time.Second)

	path, total, err := g.CriticalPath(nil)
	if err != nil {
		t.Fatalf("CriticalPath: %v", err)
	}
	if total != 8*time.Second {
		t.Errorf("expected total 8s, got %v", total)
	}
	if indexOf(path, "c") != -1 {
		t.Errorf("c has slack and must not be on the critical path: %v", path)
	}
	for _, name := range []string{"a", "b", "d"} {
		if indexOf(path, name) == -1 {
			t.Errorf("expected %s on critical path, got %v", name, path)
		}
	}
}

func TestCriticalPath_Cycle(t *testing.T) {
	g := NewGraph()
	mustAdd(t, g, "a", []string{"b"}, time.Second)
	mustAdd(t, g, "b", []string{"a"}, time.Second)

	_, _, err := g.CriticalPath(nil)
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got: %v", err)
	}
}
