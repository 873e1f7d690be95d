// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBaseStage_Defaults(t *testing.T) {
	s := &BaseStage{StageName: "development"}

	if s.Name() != "development" {
		t.Errorf("Name = %q", s.Name())
	}
	if deps := s.Dependencies(); deps == nil || len(deps) != 0 {
		t.Errorf("Dependencies = %v, want empty non-nil slice", deps)
	}
	if !s.ShouldExecute(Context{}) {
		t.Error("nil condition must mean always execute")
	}
	if s.EstimatedDuration() != DefaultEstimatedDuration {
		t.Errorf("EstimatedDuration = %v, want default", s.EstimatedDuration())
	}
	if _, err := s.Execute(context.Background(), Context{}); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("bare BaseStage.Execute error = %v, want ErrNotImplemented", err)
	}
}

func TestFuncStage(t *testing.T) {
	s := NewFuncStage("testing", []string{"development"},
		func(_ context.Context, pctx Context) (*Result, error) {
			return OK("testing", map[string]any{"passed": 12}), nil
		}).
		WithCondition(func(pctx Context) bool { return pctx.GetBool("run_tests") }).
		WithEstimatedDuration(5 * time.Minute)

	if s.ShouldExecute(Context{}) {
		t.Error("condition must gate execution")
	}
	if !s.ShouldExecute(Context{"run_tests": true}) {
		t.Error("condition must pass when context allows")
	}
	if s.EstimatedDuration() != 5*time.Minute {
		t.Errorf("EstimatedDuration = %v", s.EstimatedDuration())
	}

	res, err := s.Execute(context.Background(), Context{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.Data["passed"] != 12 {
		t.Errorf("result = %+v", res)
	}
}

func TestContext_CloneIsDeep(t *testing.T) {
	original := Context{
		"card_id": "card-7",
		"nested":  map[string]any{"key": "value"},
		"list":    []any{"a", "b"},
	}

	clone := original.Clone()
	clone["card_id"] = "mutated"
	clone["nested"].(map[string]any)["key"] = "mutated"
	clone["list"].([]any)[0] = "mutated"

	if original.GetString("card_id") != "card-7" {
		t.Error("clone must not share top-level values")
	}
	if original["nested"].(map[string]any)["key"] != "value" {
		t.Error("clone must not share nested maps")
	}
	if original["list"].([]any)[0] != "a" {
		t.Error("clone must not share nested slices")
	}
}

func TestContext_Getters(t *testing.T) {
	c := Context{"name": "artemis", "flag": true, "count": 3}

	if c.GetString("name") != "artemis" {
		t.Errorf("GetString = %q", c.GetString("name"))
	}
	if c.GetString("count") != "" {
		t.Error("GetString on non-string must return empty")
	}
	if !c.GetBool("flag") {
		t.Error("GetBool = false, want true")
	}
	if c.GetBool("missing") {
		t.Error("GetBool on missing key must return false")
	}
}

func TestResult_Constructors(t *testing.T) {
	ok := OK("a", nil)
	if !ok.Success || ok.Skipped {
		t.Errorf("OK = %+v", ok)
	}
	skip := Skip("b")
	if !skip.Success || !skip.Skipped {
		t.Errorf("Skip = %+v", skip)
	}
	fail := Fail("c", errors.New("boom"))
	if fail.Success || fail.Err == nil {
		t.Errorf("Fail = %+v", fail)
	}
}
