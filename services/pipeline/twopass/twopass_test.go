// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package twopass

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmage123/artemis-sub007/services/llm"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
	"github.com/redmage123/artemis-sub007/services/pipeline/stage"
)

func fastConfig() ExecutorConfig {
	return ExecutorConfig{
		AutoRollback:      true,
		RollbackThreshold: -0.1,
		Retry: retry.Policy{
			MaxRetries:    1,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	}
}

func scoredPass(name string, score float64, artifacts map[string]string, learnings ...string) Strategy {
	return StrategyFunc{
		PassName: name,
		Fn: func(context.Context, stage.Context) (*PassResult, error) {
			return &PassResult{
				Success:      true,
				QualityScore: score,
				Artifacts:    artifacts,
				Learnings:    learnings,
			}, nil
		},
	}
}

func TestExecutor_SecondPassAccepted(t *testing.T) {
	first := scoredPass("first_pass", 0.70, map[string]string{"main.go": "draft"})
	second := scoredPass("second_pass", 0.85, map[string]string{"main.go": "refined"})

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	result, delta, err := exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "second_pass", result.PassName)
	assert.InDelta(t, 0.15, delta.QualityDelta, 1e-9)
	assert.True(t, delta.QualityImproved)
	assert.Empty(t, exec.RollbackHistory())
}

func TestExecutor_DegradedSecondPassRollsBack(t *testing.T) {
	first := scoredPass("first_pass", 0.70, map[string]string{"main.go": "draft"})
	second := scoredPass("second_pass", 0.50, map[string]string{"main.go": "worse"})

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	result, delta, err := exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "first_pass", result.PassName)
	assert.InDelta(t, 0.70, result.QualityScore, 1e-9)
	assert.InDelta(t, -0.20, delta.QualityDelta, 1e-9)

	hist := exec.RollbackHistory()
	require.Len(t, hist, 1)
	assert.Equal(t, "first_pass", hist[0].PassName)
}

func TestExecutor_SmallRegressionWithinThresholdAccepted(t *testing.T) {
	first := scoredPass("first_pass", 0.70, nil)
	second := scoredPass("second_pass", 0.65, nil)

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	result, _, err := exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)

	// -0.05 is above the -0.1 floor: tolerated.
	assert.Equal(t, "second_pass", result.PassName)
	assert.Empty(t, exec.RollbackHistory())
}

func TestExecutor_FirstPassTerminalFailureFailsRun(t *testing.T) {
	first := StrategyFunc{
		PassName: "first_pass",
		Fn: func(context.Context, stage.Context) (*PassResult, error) {
			return nil, errors.New("cannot even draft")
		},
	}
	second := scoredPass("second_pass", 0.9, nil)

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	_, _, err = exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFirstPassFailed)
}

func TestExecutor_SecondPassFailureFallsBackToFirst(t *testing.T) {
	first := scoredPass("first_pass", 0.70, nil)
	second := StrategyFunc{
		PassName: "second_pass",
		Fn: func(context.Context, stage.Context) (*PassResult, error) {
			return nil, errors.New("refinement crashed")
		},
	}

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	result, _, err := exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "first_pass", result.PassName)
	require.Len(t, exec.RollbackHistory(), 1)
}

func TestExecutor_SecondPassSeededWithFirstPassLearnings(t *testing.T) {
	first := scoredPass("first_pass", 0.70, nil, "auth module needs input validation")

	var seeded []string
	second := StrategyFunc{
		PassName: "second_pass",
		Fn: func(_ context.Context, pctx stage.Context) (*PassResult, error) {
			seeded, _ = pctx[KeyFirstPassLearnings].([]string)
			return &PassResult{Success: true, QualityScore: 0.9}, nil
		},
	}

	exec, err := NewExecutor(first, second, fastConfig(), nil, nil)
	require.NoError(t, err)

	_, _, err = exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth module needs input validation"}, seeded)
}

func TestExecutor_PassRetry(t *testing.T) {
	attempts := 0
	first := StrategyFunc{
		PassName: "first_pass",
		Fn: func(context.Context, stage.Context) (*PassResult, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return &PassResult{Success: true, QualityScore: 0.8}, nil
		},
	}

	exec, err := NewExecutor(first, scoredPass("second_pass", 0.9, nil), fastConfig(), nil, nil)
	require.NoError(t, err)

	result, _, err := exec.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "second_pass", result.PassName)
}

func TestComparator_Deterministic(t *testing.T) {
	first := &PassResult{
		QualityScore: 0.7,
		Artifacts:    map[string]string{"a.go": "1", "b.go": "2", "gone.go": "x"},
		Learnings:    []string{"shared"},
	}
	second := &PassResult{
		QualityScore: 0.8,
		Artifacts:    map[string]string{"a.go": "1", "b.go": "changed", "new.go": "3"},
		Learnings:    []string{"shared", "fresh insight"},
	}

	c := NewComparator()
	d1 := c.Compare(first, second)
	d2 := c.Compare(first, second)

	assert.Equal(t, d1, d2, "delta must be deterministic")
	assert.Equal(t, []string{"new.go"}, d1.NewArtifacts)
	assert.Equal(t, []string{"b.go"}, d1.ModifiedArtifacts)
	assert.Equal(t, []string{"gone.go"}, d1.RemovedArtifacts)
	assert.Equal(t, []string{"fresh insight"}, d1.NewLearnings)
	assert.True(t, d1.QualityImproved)
}

func TestMemento_CopyIsIndependent(t *testing.T) {
	result := &PassResult{
		PassName:     "first_pass",
		QualityScore: 0.7,
		Artifacts:    map[string]string{"main.go": "original"},
		Learnings:    []string{"one"},
		Insights:     map[string]any{"nested": map[string]any{"key": "value"}},
	}

	m, err := CaptureMemento(result, map[string]any{"counter": 1})
	require.NoError(t, err)

	cp, err := m.CreateCopy()
	require.NoError(t, err)
	require.NotEqual(t, m.ID, cp.ID)

	cp.Artifacts["main.go"] = "mutated"
	cp.Learnings[0] = "mutated"
	cp.Insights["nested"].(map[string]any)["key"] = "mutated"

	assert.Equal(t, "original", m.Artifacts["main.go"])
	assert.Equal(t, "one", m.Learnings[0])
	assert.Equal(t, "value", m.Insights["nested"].(map[string]any)["key"])
	// The source result is also untouched.
	assert.Equal(t, "original", result.Artifacts["main.go"])
}

func TestRollbackManager_RestoreWithoutCapture(t *testing.T) {
	r := NewRollbackManager()
	_, err := r.Restore("nothing to restore")
	assert.ErrorIs(t, err, ErrNoMemento)
}

// guidanceClient returns a canned guidance string.
type guidanceClient struct {
	prompt string
	fail   bool
}

func (g *guidanceClient) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	g.prompt = prompt
	if g.fail {
		return "", errors.New("llm unavailable")
	}
	return "- tighten input validation\n", nil
}

func TestPipeline_LLMGuidanceInjected(t *testing.T) {
	client := &guidanceClient{}
	first := scoredPass("first_pass", 0.7, nil, "validation is weak")

	var guidance string
	second := StrategyFunc{
		PassName: "second_pass",
		Fn: func(_ context.Context, pctx stage.Context) (*PassResult, error) {
			guidance = pctx.GetString(KeyRefinementGuidance)
			return &PassResult{Success: true, QualityScore: 0.9}, nil
		},
	}

	p, err := NewPipeline(first, second, fastConfig(), client, nil, nil)
	require.NoError(t, err)

	_, _, err = p.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "- tighten input validation", guidance)
	assert.Contains(t, client.prompt, "validation is weak")
}

func TestPipeline_LLMFailureDoesNotFailRun(t *testing.T) {
	client := &guidanceClient{fail: true}
	first := scoredPass("first_pass", 0.7, nil, "some learning")
	second := scoredPass("second_pass", 0.9, nil)

	p, err := NewPipeline(first, second, fastConfig(), client, nil, nil)
	require.NoError(t, err)

	result, _, err := p.Execute(context.Background(), stage.Context{}, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "second_pass", result.PassName)
}
