// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"fmt"
	"sync"
)

// StackFrame is one (state, context) pair on the pushdown stack.
type StackFrame struct {
	State   TaskState      `json:"state"`
	Context map[string]any `json:"context,omitempty"`
}

// StateStack is a LIFO stack of nested state contexts, independent of
// the primary task state. Entering a sub-workflow pushes a frame;
// leaving it pops.
//
// Thread Safety:
//
//	StateStack is safe for concurrent use.
type StateStack struct {
	mu     sync.Mutex
	frames []StackFrame
}

// NewStateStack creates an empty stack.
func NewStateStack() *StateStack {
	return &StateStack{}
}

// Push adds a frame to the top of the stack.
func (s *StateStack) Push(state TaskState, context map[string]any) {
	s.mu.Lock()
	s.frames = append(s.frames, StackFrame{State: state, Context: context})
	s.mu.Unlock()
}

// Pop removes and returns the top frame.
//
// Outputs:
//
//	StackFrame - The removed frame.
//	error - ErrEmptyStack if the stack is empty.
func (s *StateStack) Pop() (StackFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return StackFrame{}, ErrEmptyStack
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top, nil
}

// Peek returns the top frame without removing it.
func (s *StateStack) Peek() (StackFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return StackFrame{}, ErrEmptyStack
	}
	return s.frames[len(s.frames)-1], nil
}

// Depth returns the number of frames on the stack.
func (s *StateStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// RollbackTo pops frames until a frame with the target state is found,
// returning that frame (which is also popped).
//
// Description:
//
//	The stack is left exactly as it was below the target frame. If the
//	target is not on the stack, the stack is drained and
//	ErrStateNotOnStack is returned; the caller decided the target
//	exists and was wrong, so the nested contexts above it are invalid
//	either way.
//
// Outputs:
//
//	StackFrame - The target frame.
//	error - ErrStateNotOnStack if target was never pushed.
func (s *StateStack) RollbackTo(target TaskState) (StackFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.frames) > 0 {
		top := s.frames[len(s.frames)-1]
		s.frames = s.frames[:len(s.frames)-1]
		if top.State == target {
			return top, nil
		}
	}
	return StackFrame{}, fmt.Errorf("%w: %s", ErrStateNotOnStack, target)
}
