// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package twopass

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redmage123/artemis-sub007/services/llm"
	"github.com/redmage123/artemis-sub007/services/pipeline/event"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

// KeyRefinementGuidance carries LLM-generated guidance into the second
// pass's context.
const KeyRefinementGuidance = "refinement_guidance"

// Pipeline is the two-pass facade.
//
// Wraps an Executor and optionally consults an LLM between passes to
// generate refinement guidance from the first pass's learnings. A
// missing or failing LLM never fails the run; the second pass simply
// receives no guidance.
type Pipeline struct {
	executor *Executor
	client   llm.Client
	logger   *slog.Logger
}

// NewPipeline creates a two-pass pipeline.
//
// Inputs:
//
//	first, second - The pass strategies.
//	cfg - Executor configuration (rollback, retry).
//	client - Optional LLM client for refinement guidance; may be nil.
func NewPipeline(first, second Strategy, cfg ExecutorConfig, client llm.Client, observable *event.Observable, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{client: client, logger: logger}

	guided := second
	if client != nil {
		guided = StrategyFunc{
			PassName: second.Name(),
			Fn: func(ctx context.Context, pctx stage.Context) (*PassResult, error) {
				if guidance := p.generateGuidance(ctx, pctx); guidance != "" {
					pctx[KeyRefinementGuidance] = guidance
				}
				return second.Execute(ctx, pctx)
			},
		}
	}

	exec, err := NewExecutor(first, guided, cfg, observable, logger)
	if err != nil {
		return nil, err
	}
	p.executor = exec
	return p, nil
}

// Execute runs both passes and returns the accepted result.
func (p *Pipeline) Execute(ctx context.Context, pctx stage.Context, runID string) (*PassResult, PassDelta, error) {
	return p.executor.Execute(ctx, pctx, runID)
}

// RollbackHistory returns the rollback records for this pipeline.
func (p *Pipeline) RollbackHistory() []RollbackRecord {
	return p.executor.RollbackHistory()
}

// generateGuidance asks the LLM for refinement guidance based on the
// first pass's learnings. Failures are logged and swallowed.
func (p *Pipeline) generateGuidance(ctx context.Context, pctx stage.Context) string {
	learnings, _ := pctx[KeyFirstPassLearnings].([]string)
	if len(learnings) == 0 {
		return ""
	}

	prompt := fmt.Sprintf(
		"A first draft pass produced these observations:\n- %s\n\n"+
			"Write concise guidance (3 bullet points maximum) for a refinement pass. "+
			"Focus on concrete improvements, not restating the observations.",
		strings.Join(learnings, "\n- "),
	)

	guidance, err := p.client.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		p.logger.Warn("refinement guidance generation failed",
			slog.String("error", err.Error()),
		)
		return ""
	}
	return strings.TrimSpace(guidance)
}
