// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package event

import (
	"log/slog"
	"sync"
	"time"
)

// Observable broadcasts pipeline events to attached observers.
//
// Thread Safety:
//
//	Observable is safe for concurrent use. Attach/Detach may be called
//	while notifications are in flight.
type Observable struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// NewObservable creates an event bus.
//
// Inputs:
//
//	logger - Used only to report observer panics. Nil uses slog.Default().
func NewObservable(logger *slog.Logger) *Observable {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observable{logger: logger}
}

// Attach registers an observer for all subsequent events.
func (o *Observable) Attach(obs Observer) {
	if obs == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Detach removes a previously attached observer.
func (o *Observable) Detach(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, existing := range o.observers {
		if existing == obs {
			o.observers = append(o.observers[:i], o.observers[i+1:]...)
			return
		}
	}
}

// Notify broadcasts an event to all observers.
//
// Description:
//
//	Notifications are fire-and-forget: each observer is invoked
//	synchronously, but panics are recovered and logged so a broken
//	observer can never abort stage execution.
func (o *Observable) Notify(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	o.mu.RLock()
	observers := make([]Observer, len(o.observers))
	copy(observers, o.observers)
	o.mu.RUnlock()

	for _, obs := range observers {
		o.safeNotify(obs, e)
	}
}

// safeNotify delivers one event to one observer, containing panics.
func (o *Observable) safeNotify(obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer panicked",
				slog.String("event_type", string(e.Type)),
				slog.Any("panic", r),
			)
		}
	}()
	obs.OnEvent(e)
}
