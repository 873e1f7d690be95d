// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Artemis components.
//
// The package is a thin layer over the standard library slog package:
//
//   - Default: stderr output for CLI compatibility (follows Unix conventions)
//   - Optional: JSON file logging with automatic directory creation
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("pipeline started", "run_id", runID)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "~/.artemis/logs",
//	    Service: "pipeline",
//	})
//	defer logger.Close()
//
// This creates log files named `{service}_{date}.log` in JSON format.
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog.Logger is
// thread-safe and file state is protected by a mutex.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels.
//
// Levels follow the slog convention and are ordered by severity:
// Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for potentially problematic situations.
	LevelWarn

	// LevelError is for error conditions the system survives.
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error")
// to a Level. Unknown names default to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// toSlogLevel converts our Level to slog.Level.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures the Logger behavior.
//
// All fields have sensible defaults. A zero-value Config creates a
// logger that writes Info+ messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level. Default: LevelInfo.
	Level Level

	// LogDir enables file logging to the specified directory.
	//
	// When set, logs are written to both stderr and a file named
	// "{Service}_{YYYY-MM-DD}.log" in JSON format. The directory is
	// created with 0750 permissions if it doesn't exist. Supports ~
	// for home directory expansion. Default: "" (disabled).
	LogDir string

	// Service identifies the component generating logs. Included in
	// every entry as the "service" attribute. Default: "" (omitted).
	Service string

	// JSON enables JSON output on stderr. File logs are always JSON.
	JSON bool

	// Quiet disables stderr output. Useful for daemon processes.
	Quiet bool
}

// Logger provides structured logging with multi-destination output.
//
// Always call Close() when done to ensure file handles are flushed:
//
//	logger, err := logging.New(config)
//	defer logger.Close()
type Logger struct {
	*slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger from the given configuration.
//
// Outputs:
//
//	*Logger - The configured logger.
//	error - Non-nil if the log directory or file cannot be created.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	logger := &Logger{}

	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	if cfg.LogDir != "" {
		dir, err := expandHome(cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("expand log dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}

		name := cfg.Service
		if name == "" {
			name = "artemis"
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.file = f
		writers = append(writers, f)
	}

	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	var handler slog.Handler
	if cfg.JSON || (cfg.Quiet && cfg.LogDir != "") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	sl := slog.New(handler)
	if cfg.Service != "" {
		sl = sl.With(slog.String("service", cfg.Service))
	}
	logger.Logger = sl

	return logger, nil
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
