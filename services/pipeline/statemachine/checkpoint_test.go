// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	store, err := NewCheckpointStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestCheckpoint_SaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	state := &checkpointState{
		TaskID: "task-1",
		State:  TaskRunning,
		Stages: map[string]StageState{
			"development": {Name: "development", Status: StageCompleted, ResultSummary: "ok"},
			"testing":     {Name: "testing", Status: StageRunning},
		},
		Issues:      []Issue{{Type: IssueTimeout}},
		TotalStages: 4,
	}
	require.NoError(t, store.Save(state))

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskRunning, loaded.State)
	assert.Equal(t, StageCompleted, loaded.Stages["development"].Status)
	assert.Len(t, loaded.Issues, 1)
	assert.True(t, store.CanResume("task-1"))
}

func TestCheckpoint_MissingFile(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("absent")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	assert.False(t, store.CanResume("absent"))
}

func TestCheckpoint_CorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(&checkpointState{TaskID: "task-1", State: TaskRunning}))

	// Flip task state in the file without updating the checksum.
	path := filepath.Join(dir, "task-1.checkpoint.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"RUNNING"`, `"COMPLETED"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = store.Load("task-1")
	assert.ErrorIs(t, err, ErrCheckpointCorrupt)
	assert.False(t, store.CanResume("task-1"))
}

func TestCheckpoint_TruncatedFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&checkpointState{TaskID: "task-1", State: TaskRunning}))

	path := filepath.Join(dir, "task-1.checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state": {`), 0o644))

	_, err = store.Load("task-1")
	assert.ErrorIs(t, err, ErrCheckpointCorrupt)
}

func TestCheckpoint_TaskIdentityEnforced(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(&checkpointState{TaskID: "task-1", State: TaskRunning}))

	// Masquerade task-1's checkpoint as task-2's.
	src := filepath.Join(dir, "task-1.checkpoint.json")
	dst := filepath.Join(dir, "task-2.checkpoint.json")
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))

	_, err = store.Load("task-2")
	assert.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestCheckpoint_InvalidTaskID(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(&checkpointState{TaskID: "../evil", State: TaskRunning})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckpoint_Progress(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(&checkpointState{
		TaskID: "task-1",
		State:  TaskRunning,
		Stages: map[string]StageState{
			"requirements": {Name: "requirements", Status: StageCompleted},
			"development":  {Name: "development", Status: StageCompleted},
			"testing":      {Name: "testing", Status: StageFailed},
			"docs":         {Name: "docs", Status: StagePending},
		},
		TotalStages: 4,
	}))

	p, err := store.GetProgress("task-1")
	require.NoError(t, err)
	assert.Len(t, p.CompletedStages, 2)
	assert.Equal(t, []string{"testing"}, p.FailedStages)
	assert.InDelta(t, 0.5, p.Fraction, 1e-9)
	assert.False(t, p.SavedAt.IsZero())
}

func TestMachine_CheckpointResume(t *testing.T) {
	dir := t.TempDir()
	store, err := NewCheckpointStore(dir)
	require.NoError(t, err)

	m1, err := NewMachine("task-9", WithCheckpointStore(store), WithTotalStages(3))
	require.NoError(t, err)
	require.NoError(t, m1.TransitionTo(TaskRunning, "started"))
	m1.StartStage("requirements")
	require.NoError(t, m1.CompleteStage("requirements", "parsed"))
	m1.StartStage("development")
	require.NoError(t, m1.CompleteStage("development", "generated"))
	require.NoError(t, m1.CreateCheckpoint())

	// Fresh machine for the same task, as after a crash.
	m2, err := NewMachine("task-9", WithCheckpointStore(store))
	require.NoError(t, err)
	require.True(t, m2.CanResume())

	completed, err := m2.ResumeFromCheckpoint()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"requirements", "development"}, completed)
	assert.Equal(t, TaskRunning, m2.State())

	p, err := m2.GetCheckpointProgress()
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, p.Fraction, 1e-9)
}

func TestMachine_NoStoreNoResume(t *testing.T) {
	m, err := NewMachine("task-1")
	require.NoError(t, err)
	assert.False(t, m.CanResume())
	_, err = m.ResumeFromCheckpoint()
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	assert.NoError(t, m.CreateCheckpoint(), "checkpointing without a store is a no-op")
}
