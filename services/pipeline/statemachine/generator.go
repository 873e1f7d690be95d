// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/redmage123/artemis-sub007/services/llm"
)

// jsonObjectPattern extracts the first JSON object from free text.
// LLMs wrap JSON in prose or code fences; best effort, fail closed.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// LLMWorkflowGenerator synthesizes recovery workflows from issue
// descriptions when no workflow is registered for an issue type.
//
// Parse failures and LLM errors are reported as errors, never guessed
// around: a recovery action invented by accident is worse than no
// recovery at all.
type LLMWorkflowGenerator struct {
	client llm.Client
	logger *slog.Logger

	// knownActions restricts generated workflows to registered action
	// names; unknown actions invalidate the whole workflow.
	knownActions func() []string
}

// NewLLMWorkflowGenerator creates a generator.
//
// Inputs:
//
//	client - The LLM client; may be nil (generation then always fails
//	         with ErrNoLLMClient).
//	registry - Action registry the generated workflows must draw from.
func NewLLMWorkflowGenerator(client llm.Client, registry *ActionRegistry, logger *slog.Logger) *LLMWorkflowGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMWorkflowGenerator{
		client:       client,
		logger:       logger,
		knownActions: registry.Names,
	}
}

// generatedWorkflow is the JSON shape the LLM is asked to produce.
type generatedWorkflow struct {
	Actions []struct {
		Name       string         `json:"name"`
		MaxRetries int            `json:"max_retries"`
		Params     map[string]any `json:"params,omitempty"`
	} `json:"actions"`
	SuccessState      string `json:"success_state"`
	FailureState      string `json:"failure_state"`
	RollbackOnFailure bool   `json:"rollback_on_failure"`
}

// Generate synthesizes a workflow for the given issue.
//
// Description:
//
//	Prompts the LLM with the issue description and the available
//	action names, extracts a JSON object from the free-text response
//	and validates it. Any failure (no client, LLM error, no JSON,
//	unknown action, invalid states) returns an error; the caller
//	treats that as "no workflow generated".
//
// Outputs:
//
//	*Workflow - The validated workflow.
//	error - ErrNoLLMClient, ErrUnparseableWorkflow, ErrUnknownAction,
//	        or a validation error.
func (g *LLMWorkflowGenerator) Generate(ctx context.Context, issue Issue) (*Workflow, error) {
	if g.client == nil {
		return nil, ErrNoLLMClient
	}

	actions := g.knownActions()
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no actions registered", ErrNoWorkflow)
	}

	prompt := g.buildPrompt(issue, actions)

	response, err := g.client.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("workflow generation: %w", err)
	}

	wf, err := g.parse(response, issue.Type)
	if err != nil {
		g.logger.Warn("discarding unparseable generated workflow",
			slog.String("issue", string(issue.Type)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return wf, nil
}

func (g *LLMWorkflowGenerator) buildPrompt(issue Issue, actions []string) string {
	var sb strings.Builder
	sb.WriteString("A software pipeline hit a problem and needs a recovery workflow.\n\n")
	fmt.Fprintf(&sb, "Issue type: %s\n", issue.Type)
	if len(issue.Metadata) > 0 {
		meta, _ := json.Marshal(issue.Metadata)
		fmt.Fprintf(&sb, "Issue details: %s\n", meta)
	}
	fmt.Fprintf(&sb, "\nAvailable recovery actions (use ONLY these names): %s\n", strings.Join(actions, ", "))
	fmt.Fprintf(&sb, "Valid states: %s, %s\n\n", TaskRunning, TaskFailed)
	sb.WriteString(`Respond with a single JSON object, no other text:
{
  "actions": [{"name": "<action>", "max_retries": <int>}],
  "success_state": "RUNNING",
  "failure_state": "FAILED",
  "rollback_on_failure": <bool>
}`)
	return sb.String()
}

// parse extracts and validates a workflow from the LLM response.
func (g *LLMWorkflowGenerator) parse(response string, issueType IssueType) (*Workflow, error) {
	raw := jsonObjectPattern.FindString(response)
	if raw == "" {
		return nil, ErrUnparseableWorkflow
	}

	var gen generatedWorkflow
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableWorkflow, err)
	}

	wf := &Workflow{
		IssueType:         issueType,
		SuccessState:      TaskState(gen.SuccessState),
		FailureState:      TaskState(gen.FailureState),
		RollbackOnFailure: gen.RollbackOnFailure,
	}
	for _, a := range gen.Actions {
		wf.Actions = append(wf.Actions, WorkflowAction{
			Name:       a.Name,
			MaxRetries: a.MaxRetries,
			Params:     a.Params,
		})
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	known := make(map[string]bool)
	for _, name := range g.knownActions() {
		known[name] = true
	}
	for _, a := range wf.Actions {
		if !known[a.Name] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAction, a.Name)
		}
	}
	if !validTaskState(wf.SuccessState) || !validTaskState(wf.FailureState) {
		return nil, fmt.Errorf("%w: unknown target state", ErrUnparseableWorkflow)
	}
	return wf, nil
}

func validTaskState(s TaskState) bool {
	for _, known := range AllTaskStates() {
		if s == known {
			return true
		}
	}
	return false
}
