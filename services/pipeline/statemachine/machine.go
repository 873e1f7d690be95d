// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package statemachine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redmage123/artemis-sub007/services/llm"
	"github.com/redmage123/artemis-sub007/services/pipeline/retry"
)

// Machine is the long-lived per-task orchestration state machine.
//
// It enforces the following transition graph:
//
//	PENDING → RUNNING        : Task started
//	RUNNING → RECOVERING     : Issue detected, workflow running
//	RUNNING → PAUSED         : Task suspended
//	RUNNING → COMPLETED      : All stages finished (terminal)
//	RUNNING → FAILED         : Unrecoverable failure (terminal)
//	RECOVERING → RUNNING     : Recovery workflow succeeded
//	RECOVERING → FAILED      : Recovery workflow failed (terminal)
//	PAUSED → RUNNING         : Task resumed
//	PAUSED → FAILED          : Failure while suspended (terminal)
//
// Thread Safety:
//
//	Machine is safe for concurrent use.
type Machine struct {
	taskID string

	mu          sync.RWMutex
	state       TaskState
	transitions map[TaskState]map[TaskState]bool
	history     []StateTransition
	stages      map[string]StageState
	issues      map[IssueType]Issue
	workflows   map[IssueType]Workflow
	totalStages int

	actions     *ActionRegistry
	generator   *LLMWorkflowGenerator
	stack       *StateStack
	checkpoints *CheckpointStore
	breaker     *retry.CircuitBreaker
	logger      *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithLLMClient enables LLM-synthesized recovery workflows for issue
// types with no registered workflow.
func WithLLMClient(client llm.Client) Option {
	return func(m *Machine) {
		m.generator = NewLLMWorkflowGenerator(client, m.actions, m.logger)
	}
}

// WithCheckpointStore enables checkpoint persistence.
func WithCheckpointStore(store *CheckpointStore) Option {
	return func(m *Machine) { m.checkpoints = store }
}

// WithLogger sets the machine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTotalStages declares the expected stage count, used for
// checkpoint progress reporting.
func WithTotalStages(n int) Option {
	return func(m *Machine) { m.totalStages = n }
}

// NewMachine creates a machine for one task in the PENDING state.
//
// Outputs:
//
//	*Machine - The configured machine.
//	error - ErrInvalidInput for an empty or unsafe task ID.
func NewMachine(taskID string, opts ...Option) (*Machine, error) {
	if taskID == "" || !validTaskIDPattern.MatchString(taskID) {
		return nil, fmt.Errorf("%w: task id must match [a-zA-Z0-9_-]+, got %q", ErrInvalidInput, taskID)
	}

	m := &Machine{
		taskID:      taskID,
		state:       TaskPending,
		transitions: make(map[TaskState]map[TaskState]bool),
		stages:      make(map[string]StageState),
		issues:      make(map[IssueType]Issue),
		workflows:   make(map[IssueType]Workflow),
		actions:     NewActionRegistry(),
		stack:       NewStateStack(),
		breaker:     retry.NewCircuitBreaker(retry.DefaultCircuitBreakerConfig()),
		logger:      slog.Default(),
	}
	for _, s := range AllTaskStates() {
		m.transitions[s] = make(map[TaskState]bool)
	}

	m.addTransition(TaskPending, TaskRunning)
	m.addTransition(TaskRunning, TaskRecovering)
	m.addTransition(TaskRunning, TaskPaused)
	m.addTransition(TaskRunning, TaskCompleted)
	m.addTransition(TaskRunning, TaskFailed)
	m.addTransition(TaskRecovering, TaskRunning)
	m.addTransition(TaskRecovering, TaskFailed)
	m.addTransition(TaskPaused, TaskRunning)
	m.addTransition(TaskPaused, TaskFailed)

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Machine) addTransition(from, to TaskState) {
	m.transitions[from][to] = true
}

// TaskID returns the task this machine tracks.
func (m *Machine) TaskID() string { return m.taskID }

// State returns the current task state.
func (m *Machine) State() TaskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Actions returns the machine's action registry for recovery
// operations.
func (m *Machine) Actions() *ActionRegistry { return m.actions }

// CanTransition checks whether a transition is in the table.
func (m *Machine) CanTransition(from, to TaskState) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if toMap, ok := m.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// TransitionTo validates and applies a task state change.
//
// Outputs:
//
//	error - ErrInvalidTransition (wrapped with the from/to pair) when
//	        the transition is not in the table.
func (m *Machine) TransitionTo(to TaskState, reason string) error {
	m.mu.Lock()
	from := m.state
	if !m.transitions[from][to] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.history = append(m.history, StateTransition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	m.mu.Unlock()

	m.logger.Info("task state transition",
		slog.String("task_id", m.taskID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason),
	)
	return nil
}

// History returns a copy of the recorded transitions.
func (m *Machine) History() []StateTransition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StateTransition, len(m.history))
	copy(out, m.history)
	return out
}

// --- issues ---

// RegisterIssue records a detected issue. Re-registering an active
// issue type replaces its metadata.
func (m *Machine) RegisterIssue(issueType IssueType, meta map[string]any) {
	m.mu.Lock()
	m.issues[issueType] = Issue{
		Type:       issueType,
		Metadata:   meta,
		DetectedAt: time.Now(),
	}
	m.mu.Unlock()

	m.logger.Warn("issue registered",
		slog.String("task_id", m.taskID),
		slog.String("issue", string(issueType)),
	)
}

// ResolveIssue removes an issue. Issues are removed only here, never
// silently expired.
//
// Outputs:
//
//	bool - False if the issue was not active.
func (m *Machine) ResolveIssue(issueType IssueType) bool {
	m.mu.Lock()
	_, ok := m.issues[issueType]
	delete(m.issues, issueType)
	m.mu.Unlock()

	if ok {
		m.logger.Info("issue resolved",
			slog.String("task_id", m.taskID),
			slog.String("issue", string(issueType)),
		)
	}
	return ok
}

// ActiveIssues returns the currently-active issues.
func (m *Machine) ActiveIssues() []Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Issue, 0, len(m.issues))
	for _, issue := range m.issues {
		out = append(out, issue)
	}
	return out
}

// HasIssue reports whether an issue type is active.
func (m *Machine) HasIssue(issueType IssueType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.issues[issueType]
	return ok
}

// --- workflows ---

// RegisterWorkflow binds a recovery workflow to its issue type.
func (m *Machine) RegisterWorkflow(wf Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.workflows[wf.IssueType] = wf
	m.mu.Unlock()
	return nil
}

// ExecuteWorkflow runs the recovery workflow for an issue type.
//
// Description:
//
//	Looks up a registered workflow; if none exists and an LLM client
//	is configured, asks the generator to synthesize one. An
//	unparseable LLM response or a missing client means failure, not a
//	guess. The pre-recovery state is pushed onto the state stack, the
//	machine enters RECOVERING, and the actions run in order, each with
//	its own retry bound, guarded by the circuit breaker. All actions
//	succeeding transitions to the workflow's success state and
//	resolves the issue; otherwise the failure state is entered,
//	optionally rolling the stack back first.
//
// Outputs:
//
//	bool - True when recovery succeeded.
//	error - ErrNoWorkflow when neither registry nor generator produced
//	        a workflow; transition errors otherwise. A false return
//	        with nil error means the workflow ran and failed.
func (m *Machine) ExecuteWorkflow(ctx context.Context, issueType IssueType) (bool, error) {
	m.mu.RLock()
	wf, registered := m.workflows[issueType]
	issue, active := m.issues[issueType]
	m.mu.RUnlock()

	if !active {
		issue = Issue{Type: issueType, DetectedAt: time.Now()}
	}

	if !registered {
		if m.generator == nil {
			return false, fmt.Errorf("%w: %s", ErrNoWorkflow, issueType)
		}
		generated, err := m.generator.Generate(ctx, issue)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrNoWorkflow, issueType, err)
		}
		wf = *generated
	}

	preState := m.State()
	m.stack.Push(preState, map[string]any{"issue": string(issueType)})

	if err := m.TransitionTo(TaskRecovering, "recovery workflow for "+string(issueType)); err != nil {
		return false, err
	}

	if err := m.runActions(ctx, wf); err != nil {
		m.logger.Error("recovery workflow failed",
			slog.String("task_id", m.taskID),
			slog.String("issue", string(issueType)),
			slog.String("error", err.Error()),
		)
		if wf.RollbackOnFailure {
			if _, rerr := m.stack.RollbackTo(preState); rerr != nil {
				m.logger.Error("stack rollback failed", slog.String("error", rerr.Error()))
			}
		}
		if terr := m.TransitionTo(wf.FailureState, "recovery actions failed"); terr != nil {
			return false, terr
		}
		return false, nil
	}

	// Discard the pushed frame; recovery context is no longer nested.
	if _, err := m.stack.RollbackTo(preState); err != nil {
		m.logger.Error("stack cleanup failed", slog.String("error", err.Error()))
	}

	if err := m.TransitionTo(wf.SuccessState, "recovery actions succeeded"); err != nil {
		return false, err
	}
	m.ResolveIssue(issueType)
	return true, nil
}

// runActions executes the workflow's actions in order.
func (m *Machine) runActions(ctx context.Context, wf Workflow) error {
	for _, action := range wf.Actions {
		fn, ok := m.actions.Lookup(action.Name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAction, action.Name)
		}

		var lastErr error
		succeeded := false
		for attempt := 0; attempt <= action.MaxRetries; attempt++ {
			if !m.breaker.Allow() {
				return fmt.Errorf("action %s: %w", action.Name, retry.ErrCircuitOpen)
			}
			if err := fn(ctx, action.Params); err != nil {
				lastErr = err
				m.breaker.RecordFailure()
				continue
			}
			m.breaker.RecordSuccess()
			succeeded = true
			break
		}
		if !succeeded {
			return fmt.Errorf("action %s exhausted %d attempts: %w", action.Name, action.MaxRetries+1, lastErr)
		}
	}
	return nil
}

// --- stage tracking ---

// StartStage marks a stage RUNNING.
func (m *Machine) StartStage(name string) {
	m.mu.Lock()
	m.stages[name] = StageState{
		Name:      name,
		Status:    StageRunning,
		StartTime: time.Now(),
	}
	m.mu.Unlock()
}

// CompleteStage marks a stage COMPLETED and checkpoints if a store is
// configured.
func (m *Machine) CompleteStage(name, resultSummary string) error {
	m.mu.Lock()
	st := m.stages[name]
	st.Name = name
	st.Status = StageCompleted
	st.ResultSummary = resultSummary
	st.EndTime = time.Now()
	m.stages[name] = st
	m.mu.Unlock()

	return m.SaveStageCheckpoint()
}

// FailStage marks a stage FAILED and checkpoints if a store is
// configured.
func (m *Machine) FailStage(name string, cause error) error {
	summary := ""
	if cause != nil {
		summary = cause.Error()
	}
	m.mu.Lock()
	st := m.stages[name]
	st.Name = name
	st.Status = StageFailed
	st.ResultSummary = summary
	st.EndTime = time.Now()
	m.stages[name] = st
	m.mu.Unlock()

	return m.SaveStageCheckpoint()
}

// StageStates returns a copy of the per-stage states.
func (m *Machine) StageStates() map[string]StageState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]StageState, len(m.stages))
	for k, v := range m.stages {
		out[k] = v
	}
	return out
}

// --- pushdown stack ---

// PushState enters a nested state context.
func (m *Machine) PushState(state TaskState, context map[string]any) {
	m.stack.Push(state, context)
}

// PopState leaves the innermost nested state context.
func (m *Machine) PopState() (StackFrame, error) {
	return m.stack.Pop()
}

// PeekState returns the innermost nested state context.
func (m *Machine) PeekState() (StackFrame, error) {
	return m.stack.Peek()
}

// RollbackToState pops nested contexts until target is found.
func (m *Machine) RollbackToState(target TaskState) (StackFrame, error) {
	return m.stack.RollbackTo(target)
}

// --- checkpointing ---

// snapshotState builds the persistable checkpoint state.
func (m *Machine) snapshotState() *checkpointState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stages := make(map[string]StageState, len(m.stages))
	for k, v := range m.stages {
		stages[k] = v
	}
	issues := make([]Issue, 0, len(m.issues))
	for _, issue := range m.issues {
		issues = append(issues, issue)
	}
	return &checkpointState{
		TaskID:      m.taskID,
		State:       m.state,
		Stages:      stages,
		Issues:      issues,
		TotalStages: m.totalStages,
	}
}

// CreateCheckpoint persists the current machine state.
func (m *Machine) CreateCheckpoint() error {
	if m.checkpoints == nil {
		return nil
	}
	return m.checkpoints.Save(m.snapshotState())
}

// SaveStageCheckpoint persists state after a stage status change.
// Same data as CreateCheckpoint; named separately because it runs on
// the hot path after every stage.
func (m *Machine) SaveStageCheckpoint() error {
	return m.CreateCheckpoint()
}

// CanResume reports whether a valid checkpoint exists for this task.
func (m *Machine) CanResume() bool {
	if m.checkpoints == nil {
		return false
	}
	return m.checkpoints.CanResume(m.taskID)
}

// ResumeFromCheckpoint restores task state, stage states and issues
// from the persisted checkpoint.
//
// Outputs:
//
//	[]string - Names of stages already completed; the caller skips
//	           re-executing them.
//	error - ErrNoCheckpoint, ErrCheckpointCorrupt or
//	        ErrCheckpointMismatch.
func (m *Machine) ResumeFromCheckpoint() ([]string, error) {
	if m.checkpoints == nil {
		return nil, ErrNoCheckpoint
	}
	state, err := m.checkpoints.Load(m.taskID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.state = state.State
	m.stages = make(map[string]StageState, len(state.Stages))
	var completed []string
	for name, st := range state.Stages {
		m.stages[name] = st
		if st.Status == StageCompleted {
			completed = append(completed, name)
		}
	}
	m.issues = make(map[IssueType]Issue, len(state.Issues))
	for _, issue := range state.Issues {
		m.issues[issue.Type] = issue
	}
	if state.TotalStages > 0 {
		m.totalStages = state.TotalStages
	}
	m.mu.Unlock()

	m.logger.Info("resumed from checkpoint",
		slog.String("task_id", m.taskID),
		slog.Int("completed_stages", len(completed)),
	)
	return completed, nil
}

// GetCheckpointProgress summarizes the persisted checkpoint.
func (m *Machine) GetCheckpointProgress() (*Progress, error) {
	if m.checkpoints == nil {
		return nil, ErrNoCheckpoint
	}
	return m.checkpoints.GetProgress(m.taskID)
}

// Snapshot returns a point-in-time view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stages := make(map[string]StageState, len(m.stages))
	for k, v := range m.stages {
		stages[k] = v
	}
	issues := make([]Issue, 0, len(m.issues))
	for _, issue := range m.issues {
		issues = append(issues, issue)
	}
	transitions := make([]StateTransition, len(m.history))
	copy(transitions, m.history)

	return Snapshot{
		TaskID:      m.taskID,
		State:       m.state,
		Stages:      stages,
		Issues:      issues,
		Transitions: transitions,
		StackDepth:  m.stack.Depth(),
		TakenAt:     time.Now(),
	}
}
