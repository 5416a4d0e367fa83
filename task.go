// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides Go types for the Agent-to-Agent (A2A) task protocol:
// the task lifecycle model, update events, the JSON-RPC envelope, and the
// error taxonomy shared by the server and client packages.
package a2a

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

// Task lifecycle states.
const (
	// TaskStateSubmitted is the initial state of a newly created task.
	TaskStateSubmitted TaskState = "submitted"
	// TaskStateWorking indicates the agent is actively processing the task.
	TaskStateWorking TaskState = "working"
	// TaskStateInputRequired indicates the task is paused waiting for
	// additional client input.
	TaskStateInputRequired TaskState = "input-required"
	// TaskStateAuthRequired indicates the task is paused waiting for
	// authentication to be satisfied.
	TaskStateAuthRequired TaskState = "auth-required"
	// TaskStateCompleted is a terminal state for successfully finished tasks.
	TaskStateCompleted TaskState = "completed"
	// TaskStateCanceled is a terminal state for canceled tasks.
	TaskStateCanceled TaskState = "canceled"
	// TaskStateFailed is a terminal state for tasks that ended in error.
	TaskStateFailed TaskState = "failed"
	// TaskStateRejected is a terminal state for tasks the agent refused.
	TaskStateRejected TaskState = "rejected"
	// TaskStateUnknown is an error-recovery state used when the agent cannot
	// determine the task's status.
	TaskStateUnknown TaskState = "unknown"
)

// Terminal reports whether the state permits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}
	return false
}

// Validate ensures the TaskState is one of the known states.
func (s TaskState) Validate() error {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateAuthRequired, TaskStateCompleted, TaskStateCanceled,
		TaskStateFailed, TaskStateRejected, TaskStateUnknown:
		return nil
	}
	return fmt.Errorf("unknown task state: %q", string(s))
}

// transitions is the task lifecycle state machine. A state maps to the set of
// states it may move to. Terminal states have no entry. Every non-terminal
// state may be canceled, and may fall into the unknown recovery state; unknown
// may resolve back to working or directly to any terminal state.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateAuthRequired, TaskStateCanceled, TaskStateRejected, TaskStateUnknown},
	TaskStateWorking:       {TaskStateInputRequired, TaskStateAuthRequired, TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected, TaskStateUnknown},
	TaskStateInputRequired: {TaskStateWorking, TaskStateCanceled, TaskStateUnknown},
	TaskStateAuthRequired:  {TaskStateWorking, TaskStateCanceled, TaskStateUnknown},
	TaskStateUnknown:       {TaskStateWorking, TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected},
}

// CanTransition reports whether a task may move from one state to another.
// Non-terminal states may re-enter themselves (status message refresh);
// terminal states permit no outbound transitions.
func (s TaskState) CanTransition(to TaskState) bool {
	if s.Terminal() {
		return false
	}
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskStatus is the current lifecycle status of a task: the state, an
// optional human-readable message, and the time the status was set.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Validate ensures the TaskStatus is valid.
func (s TaskStatus) Validate() error {
	return s.State.Validate()
}

// Task is a unit of work tracked through its lifecycle, addressed by a
// stable, client- or server-generated ID.
type Task struct {
	// ID uniquely identifies the task. It may be chosen by the client before
	// the task exists on the server.
	ID string `json:"id"`

	// ContextID groups related tasks belonging to one conversation.
	ContextID string `json:"contextId,omitzero"`

	// Status is the current lifecycle status.
	Status TaskStatus `json:"status"`

	// History is the ordered, append-only sequence of exchanged messages.
	History []*Message `json:"history,omitzero"`

	// Artifacts are the ordered outputs produced by the agent. Entries are
	// append-only; a streaming artifact may grow in place chunk by chunk.
	Artifacts []*Artifact `json:"artifacts,omitzero"`

	// Metadata is an open key-value mapping, opaque to the protocol core.
	Metadata map[string]any `json:"metadata,omitzero"`

	// CreatedAt and UpdatedAt order tasks for listing. UpdatedAt advances on
	// every mutation.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Validate ensures the Task is valid.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	for i, a := range t.Artifacts {
		if a == nil {
			return fmt.Errorf("task %s: artifact at index %d cannot be nil", t.ID, i)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return nil
}

// NewTask creates a task in the submitted state. If id or contextID are
// empty, fresh UUIDs are generated.
func NewTask(id, contextID string) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	if contextID == "" {
		contextID = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Task{
		ID:        id,
		ContextID: contextID,
		Status: TaskStatus{
			State:     TaskStateSubmitted,
			Timestamp: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TrimHistory returns a shallow copy of the task with history truncated to
// the most recent n messages. A nil n keeps the full history; zero drops it.
func (t *Task) TrimHistory(n *int) *Task {
	if n == nil {
		return t
	}
	out := *t
	switch {
	case *n <= 0:
		out.History = nil
	case len(t.History) > *n:
		out.History = t.History[len(t.History)-*n:]
	}
	return &out
}
