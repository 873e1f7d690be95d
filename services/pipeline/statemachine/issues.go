// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import "time"

// IssueType is a named category of failure detected during a run.
type IssueType string

// Well-known issue types. Callers may register workflows for custom
// types as well.
const (
	IssueTimeout         IssueType = "TIMEOUT"
	IssueHangingProcess  IssueType = "HANGING_PROCESS"
	IssueMemoryExhausted IssueType = "MEMORY_EXHAUSTED"
	IssueDiskFull        IssueType = "DISK_FULL"
	IssueNetworkError    IssueType = "NETWORK_ERROR"
	IssueLLMError        IssueType = "LLM_ERROR"
)

// Issue is one active, detected problem. Issues are removed only on
// explicit resolution, never silently expired.
type Issue struct {
	Type       IssueType      `json:"type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
}
