// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads pipeline engine configuration.
//
// Priority: environment variables > config file > defaults. Numeric
// retry and backoff values are configuration, not engine invariants;
// changing them never requires a code change.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
)

// Duration wraps time.Duration so YAML configs can say "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the engine's top-level configuration.
//
// Thread Safety: safe to read concurrently, not safe to modify after
// creation.
type Config struct {
	// Retry contains stage retry/backoff settings.
	Retry RetryConfig `yaml:"retry"`

	// Parallel contains concurrent execution settings.
	Parallel ParallelConfig `yaml:"parallel"`

	// TwoPass contains two-pass refinement settings.
	TwoPass TwoPassConfig `yaml:"two_pass"`

	// Checkpoint contains checkpoint persistence settings.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// RetryConfig contains stage retry/backoff settings.
type RetryConfig struct {
	MaxRetries    int      `yaml:"max_retries" validate:"min=0"`
	BaseDelay     Duration `yaml:"base_delay"`
	MaxDelay      Duration `yaml:"max_delay"`
	BackoffFactor float64  `yaml:"backoff_factor" validate:"gte=1"`
	JitterFactor  float64  `yaml:"jitter_factor" validate:"gte=0,lte=1"`
}

// ParallelConfig contains concurrent execution settings.
type ParallelConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxWorkers int  `yaml:"max_workers" validate:"min=1"`
}

// TwoPassConfig contains two-pass refinement settings.
type TwoPassConfig struct {
	AutoRollback bool `yaml:"auto_rollback"`

	// RollbackThreshold is the quality-delta floor; a second pass
	// scoring below first+threshold is rolled back. Negative: some
	// regression is tolerated.
	RollbackThreshold float64 `yaml:"rollback_threshold" validate:"lte=0"`
}

// CheckpointConfig contains checkpoint persistence settings.
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir" validate:"required_if=Enabled true"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Retry: RetryConfig{
			MaxRetries:    2,
			BaseDelay:     Duration(1 * time.Second),
			MaxDelay:      Duration(30 * time.Second),
			BackoffFactor: 2.0,
			JitterFactor:  0.2,
		},
		Parallel: ParallelConfig{
			Enabled:    false,
			MaxWorkers: 4,
		},
		TwoPass: TwoPassConfig{
			AutoRollback:      true,
			RollbackThreshold: -0.1,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
			Dir:     ".artemis/checkpoints",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	path - Path to a YAML config file. Empty or missing files fall
//	       back to defaults without error.
//
// Outputs:
//
//	Config - Merged configuration.
//	error - Non-nil if the file exists but is invalid, or validation
//	        fails after merging.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("ARTEMIS_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxRetries = i
		}
	}
	if v := os.Getenv("ARTEMIS_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.BaseDelay = Duration(d)
		}
	}
	if v := os.Getenv("ARTEMIS_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.MaxDelay = Duration(d)
		}
	}
	if v := os.Getenv("ARTEMIS_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.BackoffFactor = f
		}
	}
	if v := os.Getenv("ARTEMIS_PARALLEL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Parallel.Enabled = b
		}
	}
	if v := os.Getenv("ARTEMIS_MAX_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Parallel.MaxWorkers = i
		}
	}
	if v := os.Getenv("ARTEMIS_ROLLBACK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TwoPass.RollbackThreshold = f
		}
	}
	if v := os.Getenv("ARTEMIS_CHECKPOINT_DIR"); v != "" {
		cfg.Checkpoint.Dir = v
	}
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// RetryPolicy converts the retry settings into an executable policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    c.Retry.MaxRetries,
		BaseDelay:     c.Retry.BaseDelay.Std(),
		MaxDelay:      c.Retry.MaxDelay.Std(),
		BackoffFactor: c.Retry.BackoffFactor,
		JitterFactor:  c.Retry.JitterFactor,
	}
}
