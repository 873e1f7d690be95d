// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.Retry.BaseDelay.Std())
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay.Std())
	assert.InDelta(t, -0.1, cfg.TwoPass.RollbackThreshold, 1e-9)

	policy := cfg.RetryPolicy()
	require.NoError(t, policy.Validate())
	assert.Equal(t, 2, policy.MaxRetries)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artemis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  max_retries: 5
  base_delay: 500ms
  max_delay: 1m
  backoff_factor: 3.0
  jitter_factor: 0.1
parallel:
  enabled: true
  max_workers: 8
two_pass:
  auto_rollback: true
  rollback_threshold: -0.2
checkpoint:
  enabled: true
  dir: /tmp/artemis
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay.Std())
	assert.Equal(t, time.Minute, cfg.Retry.MaxDelay.Std())
	assert.True(t, cfg.Parallel.Enabled)
	assert.Equal(t, 8, cfg.Parallel.MaxWorkers)
	assert.InDelta(t, -0.2, cfg.TwoPass.RollbackThreshold, 1e-9)
	assert.Equal(t, "/tmp/artemis", cfg.Checkpoint.Dir)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Retry.MaxRetries, cfg.Retry.MaxRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artemis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_retries: 5\n"), 0o644))

	t.Setenv("ARTEMIS_MAX_RETRIES", "7")
	t.Setenv("ARTEMIS_MAX_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 2, cfg.Parallel.MaxWorkers)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artemis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artemis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  max_retries: -1
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDuration_BadValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artemis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  base_delay: banana\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
