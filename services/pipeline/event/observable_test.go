// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package event

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingObserver collects every event it receives.
type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingObserver) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestObservable_Notify(t *testing.T) {
	obs := NewObservable(nil)
	rec := &recordingObserver{}
	obs.Attach(rec)

	obs.Notify(Event{Type: StageStarted, RunID: "run-1", StageName: "development"})
	obs.Notify(Event{Type: StageCompleted, RunID: "run-1", StageName: "development"})

	if rec.count() != 2 {
		t.Fatalf("expected 2 events, got %d", rec.count())
	}
	if rec.events[0].Timestamp.IsZero() {
		t.Error("Notify must stamp a timestamp")
	}
}

func TestObservable_Detach(t *testing.T) {
	obs := NewObservable(nil)
	rec := &recordingObserver{}
	obs.Attach(rec)
	obs.Detach(rec)

	obs.Notify(Event{Type: StageStarted, RunID: "run-1"})
	if rec.count() != 0 {
		t.Errorf("detached observer received %d events", rec.count())
	}
}

func TestObservable_ObserverPanicIsContained(t *testing.T) {
	obs := NewObservable(nil)
	rec := &recordingObserver{}

	obs.Attach(ObserverFunc(func(Event) { panic("broken observer") }))
	obs.Attach(rec)

	// Must not panic, and must still reach the healthy observer.
	obs.Notify(Event{Type: PipelineStarted, RunID: "run-1"})

	if rec.count() != 1 {
		t.Errorf("healthy observer starved by panicking sibling, got %d events", rec.count())
	}
}

func TestObservable_AttachNil(t *testing.T) {
	obs := NewObservable(nil)
	obs.Attach(nil)
	obs.Notify(Event{Type: PipelineStarted})
}

func TestMetricsObserver_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsObserver(reg)
	if err != nil {
		t.Fatalf("NewMetricsObserver: %v", err)
	}

	m.OnEvent(Event{Type: StageStarted, StageName: "testing"})
	m.OnEvent(Event{Type: StageCompleted, StageName: "testing", Data: map[string]any{"duration_seconds": 0.25}})
	m.OnEvent(Event{Type: StageCompleted, StageName: "testing", Data: map[string]any{"duration_seconds": 0.5}})

	if got := testutil.ToFloat64(m.events.WithLabelValues(string(StageCompleted))); got != 2 {
		t.Errorf("stage_completed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(StageStarted))); got != 1 {
		t.Errorf("stage_started count = %v, want 1", got)
	}
}
