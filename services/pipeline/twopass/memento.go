// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package twopass

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memento is a deep, independent snapshot of one pass's state, used
// for rollback or learning transfer.
//
// Mutating a memento (or a copy obtained via CreateCopy) never affects
// the pass result it was captured from.
type Memento struct {
	ID           string            `json:"id"`
	PassName     string            `json:"pass_name"`
	State        map[string]any    `json:"state,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	Learnings    []string          `json:"learnings,omitempty"`
	Insights     map[string]any    `json:"insights,omitempty"`
	QualityScore float64           `json:"quality_score"`
	CapturedAt   time.Time         `json:"captured_at"`
}

// CaptureMemento snapshots a pass result.
//
// The snapshot is taken through a JSON roundtrip so nested maps and
// slices share no memory with the source.
func CaptureMemento(result *PassResult, state map[string]any) (*Memento, error) {
	m := &Memento{
		ID:           uuid.NewString()[:12],
		PassName:     result.PassName,
		QualityScore: result.QualityScore,
		CapturedAt:   time.Now(),
	}

	if err := deepCopy(result.Artifacts, &m.Artifacts); err != nil {
		return nil, fmt.Errorf("capture artifacts: %w", err)
	}
	if err := deepCopy(result.Learnings, &m.Learnings); err != nil {
		return nil, fmt.Errorf("capture learnings: %w", err)
	}
	if err := deepCopy(result.Insights, &m.Insights); err != nil {
		return nil, fmt.Errorf("capture insights: %w", err)
	}
	if err := deepCopy(state, &m.State); err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}
	return m, nil
}

// CreateCopy returns a deep, independent copy of the memento.
func (m *Memento) CreateCopy() (*Memento, error) {
	var out Memento
	if err := deepCopy(m, &out); err != nil {
		return nil, fmt.Errorf("copy memento: %w", err)
	}
	out.ID = uuid.NewString()[:12]
	return &out, nil
}

// deepCopy copies src into dst through a JSON roundtrip.
func deepCopy(src, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// RollbackRecord documents one rollback.
type RollbackRecord struct {
	MementoID string    `json:"memento_id"`
	PassName  string    `json:"pass_name"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RollbackManager captures and restores pass mementos and tracks
// rollback history.
//
// Thread Safety:
//
//	RollbackManager is safe for concurrent use.
type RollbackManager struct {
	mu      sync.Mutex
	memento *Memento
	history []RollbackRecord
}

// NewRollbackManager creates an empty rollback manager.
func NewRollbackManager() *RollbackManager {
	return &RollbackManager{}
}

// Capture stores a snapshot of the given pass result as the rollback
// target, replacing any previous snapshot.
func (r *RollbackManager) Capture(result *PassResult, state map[string]any) (*Memento, error) {
	m, err := CaptureMemento(result, state)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.memento = m
	r.mu.Unlock()
	return m, nil
}

// Restore returns an independent copy of the captured memento and
// records the rollback.
//
// Outputs:
//
//	*Memento - A deep copy, safe to mutate.
//	error - ErrNoMemento if nothing was captured.
func (r *RollbackManager) Restore(reason string) (*Memento, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memento == nil {
		return nil, ErrNoMemento
	}
	restored, err := r.memento.CreateCopy()
	if err != nil {
		return nil, err
	}
	r.history = append(r.history, RollbackRecord{
		MementoID: r.memento.ID,
		PassName:  r.memento.PassName,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	return restored, nil
}

// History returns a copy of the rollback history.
func (r *RollbackManager) History() []RollbackRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RollbackRecord, len(r.history))
	copy(out, r.history)
	return out
}
