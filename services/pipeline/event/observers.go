// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package event

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// LoggingObserver writes every pipeline event to a structured logger.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates a logging observer.
// A nil logger uses slog.Default().
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// OnEvent implements Observer.
func (l *LoggingObserver) OnEvent(e Event) {
	attrs := []any{
		slog.String("event", string(e.Type)),
		slog.String("run_id", e.RunID),
	}
	if e.StageName != "" {
		attrs = append(attrs, slog.String("stage", e.StageName))
	}
	for k, v := range e.Data {
		attrs = append(attrs, slog.Any(k, v))
	}

	switch e.Type {
	case StageFailed, PipelineFailed:
		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}
		l.logger.Error("pipeline event", attrs...)
	case StageRetrying:
		l.logger.Warn("pipeline event", attrs...)
	default:
		l.logger.Info("pipeline event", attrs...)
	}
}

// MetricsObserver exports pipeline event counts and stage durations
// as Prometheus metrics.
type MetricsObserver struct {
	events        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// NewMetricsObserver creates a metrics observer registered against reg.
//
// Inputs:
//
//	reg - The Prometheus registerer. Nil uses the default registerer.
//
// Outputs:
//
//	*MetricsObserver - The observer.
//	error - Non-nil if metric registration fails (e.g. duplicate
//	        registration in the same process).
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MetricsObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "artemis_pipeline_events_total",
			Help: "Number of pipeline events by type.",
		}, []string{"type"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artemis_stage_duration_seconds",
			Help:    "Wall-clock duration of completed stage attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	if err := reg.Register(m.events); err != nil {
		return nil, err
	}
	if err := reg.Register(m.stageDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// OnEvent implements Observer.
func (m *MetricsObserver) OnEvent(e Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()

	if e.Type == StageCompleted {
		if secs, ok := e.Data["duration_seconds"].(float64); ok {
			m.stageDuration.WithLabelValues(e.StageName).Observe(secs)
		}
	}
}
