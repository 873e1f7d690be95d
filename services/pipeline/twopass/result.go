// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package twopass runs a draft pass followed by a refinement pass,
// compares quality, and can roll back to the draft when refinement
// degrades quality beyond a threshold.
package twopass

import (
	"sort"
	"time"
)

// PassResult is one pass's output.
type PassResult struct {
	// PassName identifies the pass ("first_pass", "second_pass").
	PassName string `json:"pass_name"`

	// Success reports whether the pass completed.
	Success bool `json:"success"`

	// Artifacts maps artifact name to content.
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// QualityScore is comparable across passes of the same run.
	QualityScore float64 `json:"quality_score"`

	// ExecutionTime is the pass's wall-clock duration.
	ExecutionTime time.Duration `json:"execution_time"`

	// Learnings are free-text observations carried into the next pass.
	Learnings []string `json:"learnings,omitempty"`

	// Insights carries structured pass metadata.
	Insights map[string]any `json:"insights,omitempty"`

	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// PassDelta is a read-only comparison between two PassResults.
//
// Deterministic given its two inputs; recomputed, never mutated.
type PassDelta struct {
	// QualityDelta is second minus first.
	QualityDelta float64 `json:"quality_delta"`

	// QualityImproved is true when QualityDelta > 0.
	QualityImproved bool `json:"quality_improved"`

	// Artifact key sets, sorted for determinism.
	NewArtifacts      []string `json:"new_artifacts,omitempty"`
	ModifiedArtifacts []string `json:"modified_artifacts,omitempty"`
	RemovedArtifacts  []string `json:"removed_artifacts,omitempty"`

	// NewLearnings are learnings present only in the second pass.
	NewLearnings []string `json:"new_learnings,omitempty"`
}

// Comparator computes PassDeltas.
type Comparator struct{}

// NewComparator creates a comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare computes the delta between a first and second pass.
//
// Inputs:
//
//	first - The draft pass result.
//	second - The refinement pass result.
//
// Outputs:
//
//	PassDelta - Deterministic comparison; artifact key sets are sorted.
func (c *Comparator) Compare(first, second *PassResult) PassDelta {
	delta := PassDelta{
		QualityDelta: second.QualityScore - first.QualityScore,
	}
	delta.QualityImproved = delta.QualityDelta > 0

	for key, content := range second.Artifacts {
		if firstContent, ok := first.Artifacts[key]; !ok {
			delta.NewArtifacts = append(delta.NewArtifacts, key)
		} else if firstContent != content {
			delta.ModifiedArtifacts = append(delta.ModifiedArtifacts, key)
		}
	}
	for key := range first.Artifacts {
		if _, ok := second.Artifacts[key]; !ok {
			delta.RemovedArtifacts = append(delta.RemovedArtifacts, key)
		}
	}
	sort.Strings(delta.NewArtifacts)
	sort.Strings(delta.ModifiedArtifacts)
	sort.Strings(delta.RemovedArtifacts)

	known := make(map[string]bool, len(first.Learnings))
	for _, l := range first.Learnings {
		known[l] = true
	}
	for _, l := range second.Learnings {
		if !known[l] {
			delta.NewLearnings = append(delta.NewLearnings, l)
		}
	}

	return delta
}
