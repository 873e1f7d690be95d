// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// CheckpointVersion is the current checkpoint format version (semver).
const CheckpointVersion = "1.0.0"

// validTaskIDPattern restricts task IDs to filesystem-safe characters.
var validTaskIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// checkpointState is the JSON-serializable task state persisted per
// checkpoint.
type checkpointState struct {
	TaskID      string                `json:"task_id"`
	State       TaskState             `json:"state"`
	Stages      map[string]StageState `json:"stages,omitempty"`
	Issues      []Issue               `json:"issues,omitempty"`
	TotalStages int                   `json:"total_stages"`
}

// checkpointFile is the on-disk checkpoint format.
type checkpointFile struct {
	State     *checkpointState `json:"state"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Checksum  string           `json:"checksum"`
}

// computeChecksum calculates SHA256 of the state for integrity
// verification; the checksum field itself is excluded.
func computeChecksum(state *checkpointState, timestamp time.Time) (string, error) {
	data := struct {
		State     *checkpointState `json:"state"`
		Timestamp time.Time        `json:"timestamp"`
		Version   string           `json:"version"`
	}{
		State:     state,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// Progress summarizes a checkpoint's stage completion.
type Progress struct {
	TaskID          string    `json:"task_id"`
	CompletedStages []string  `json:"completed_stages"`
	FailedStages    []string  `json:"failed_stages"`
	TotalStages     int       `json:"total_stages"`
	Fraction        float64   `json:"fraction"`
	SavedAt         time.Time `json:"saved_at"`
}

// CheckpointStore persists task checkpoints as checksummed JSON files,
// one per task, written atomically.
//
// Thread Safety:
//
//	Safe for concurrent use across distinct task IDs. Concurrent
//	writes for the same task serialize on the final rename.
type CheckpointStore struct {
	dir string
}

// NewCheckpointStore creates a store rooted at dir, creating it if
// necessary.
func NewCheckpointStore(dir string) (*CheckpointStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: checkpoint dir must not be empty", ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &CheckpointStore{dir: dir}, nil
}

// path returns the checkpoint file path for a task.
func (cs *CheckpointStore) path(taskID string) string {
	return filepath.Join(cs.dir, taskID+".checkpoint.json")
}

// Save writes a checkpoint for the given state, atomically.
func (cs *CheckpointStore) Save(state *checkpointState) error {
	if state == nil || state.TaskID == "" {
		return fmt.Errorf("%w: checkpoint state must carry a task id", ErrInvalidInput)
	}
	if !validTaskIDPattern.MatchString(state.TaskID) {
		return fmt.Errorf("%w: task id must match [a-zA-Z0-9_-]+, got %q", ErrInvalidInput, state.TaskID)
	}

	timestamp := time.Now()
	checksum, err := computeChecksum(state, timestamp)
	if err != nil {
		return err
	}

	file := &checkpointFile{
		State:     state,
		Timestamp: timestamp,
		Version:   CheckpointVersion,
		Checksum:  checksum,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically: temp file + fsync + rename.
	tempFile, err := os.CreateTemp(cs.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, cs.path(state.TaskID)); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	success = true
	return nil
}

// Load reads and verifies the checkpoint for a task.
//
// Outputs:
//
//	*checkpointState - The verified state.
//	error - ErrNoCheckpoint, ErrCheckpointCorrupt (bad JSON, bad
//	        checksum, version mismatch) or ErrCheckpointMismatch.
func (cs *CheckpointStore) Load(taskID string) (*checkpointState, error) {
	data, err := os.ReadFile(cs.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}
	if file.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrCheckpointCorrupt)
	}
	if file.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: version %q, want %q", ErrCheckpointCorrupt, file.Version, CheckpointVersion)
	}

	expected, err := computeChecksum(file.State, file.Timestamp)
	if err != nil {
		return nil, err
	}
	if file.Checksum != expected {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCheckpointCorrupt)
	}
	if file.State.TaskID != taskID {
		return nil, fmt.Errorf("%w: checkpoint is for task %q", ErrCheckpointMismatch, file.State.TaskID)
	}
	return file.State, nil
}

// CanResume reports whether a valid, non-corrupt checkpoint exists for
// the task.
func (cs *CheckpointStore) CanResume(taskID string) bool {
	_, err := cs.Load(taskID)
	return err == nil
}

// GetProgress summarizes the checkpoint's stage completion.
func (cs *CheckpointStore) GetProgress(taskID string) (*Progress, error) {
	data, err := os.ReadFile(cs.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
	}

	state, err := cs.Load(taskID)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		TaskID:      taskID,
		TotalStages: state.TotalStages,
		SavedAt:     file.Timestamp,
	}
	for name, st := range state.Stages {
		switch st.Status {
		case StageCompleted:
			p.CompletedStages = append(p.CompletedStages, name)
		case StageFailed:
			p.FailedStages = append(p.FailedStages, name)
		}
	}
	if p.TotalStages > 0 {
		p.Fraction = float64(len(p.CompletedStages)) / float64(p.TotalStages)
	}
	return p, nil
}

// Delete removes the task's checkpoint. Missing checkpoints are not an
// error.
func (cs *CheckpointStore) Delete(taskID string) error {
	err := os.Remove(cs.path(taskID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
