// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Event kinds as they appear in the wire frame's "kind" field.
const (
	EventKindTask           = "task"
	EventKindStatusUpdate   = "status-update"
	EventKindArtifactUpdate = "artifact-update"
)

// Event is a notification of task change delivered to subscribers. Events
// are ephemeral: the task itself is the durable record, an event only
// describes the change that just happened.
type Event interface {
	// Kind returns the frame discriminator for the event.
	Kind() string

	// EventTaskID returns the ID of the task the event is about.
	EventTaskID() string

	// IsFinal reports whether this is the last event the subscription will
	// receive.
	IsFinal() bool
}

// TaskEvent carries a full snapshot of a task. It is the first frame of a
// subscription to an existing task and the sole frame of a unary response.
type TaskEvent struct {
	EventKind string `json:"kind"`
	Task      *Task  `json:"task"`
}

// NewTaskEvent creates a snapshot event for a task.
func NewTaskEvent(task *Task) *TaskEvent {
	return &TaskEvent{EventKind: EventKindTask, Task: task}
}

// Kind implements [Event].
func (e *TaskEvent) Kind() string { return EventKindTask }

// EventTaskID implements [Event].
func (e *TaskEvent) EventTaskID() string {
	if e.Task == nil {
		return ""
	}
	return e.Task.ID
}

// IsFinal implements [Event]. A snapshot of a terminal task ends the
// subscription; there is nothing further to deliver.
func (e *TaskEvent) IsFinal() bool {
	return e.Task != nil && e.Task.Status.State.Terminal()
}

// StatusUpdateEvent announces a task status transition.
type StatusUpdateEvent struct {
	EventKind string         `json:"kind"`
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitzero"`
	Status    TaskStatus     `json:"status"`
	Final     bool           `json:"final"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// NewStatusUpdateEvent creates a status update event. Final is set exactly
// when the new status is terminal.
func NewStatusUpdateEvent(taskID, contextID string, status TaskStatus) *StatusUpdateEvent {
	return &StatusUpdateEvent{
		EventKind: EventKindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status:    status,
		Final:     status.State.Terminal(),
	}
}

// Kind implements [Event].
func (e *StatusUpdateEvent) Kind() string { return EventKindStatusUpdate }

// EventTaskID implements [Event].
func (e *StatusUpdateEvent) EventTaskID() string { return e.TaskID }

// IsFinal implements [Event].
func (e *StatusUpdateEvent) IsFinal() bool { return e.Final }

// ArtifactUpdateEvent announces a new artifact or a chunk of a streaming
// artifact. LastChunk marks the end of that artifact's stream, not the end
// of the subscription.
type ArtifactUpdateEvent struct {
	EventKind string    `json:"kind"`
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId,omitzero"`
	Artifact  *Artifact `json:"artifact"`
	Append    bool      `json:"append"`
	LastChunk bool      `json:"lastChunk"`
}

// NewArtifactUpdateEvent creates an artifact update event.
func NewArtifactUpdateEvent(taskID, contextID string, artifact *Artifact, appendChunk, lastChunk bool) *ArtifactUpdateEvent {
	return &ArtifactUpdateEvent{
		EventKind: EventKindArtifactUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Artifact:  artifact,
		Append:    appendChunk,
		LastChunk: lastChunk,
	}
}

// Kind implements [Event].
func (e *ArtifactUpdateEvent) Kind() string { return EventKindArtifactUpdate }

// EventTaskID implements [Event].
func (e *ArtifactUpdateEvent) EventTaskID() string { return e.TaskID }

// IsFinal implements [Event].
func (e *ArtifactUpdateEvent) IsFinal() bool { return false }

// UnmarshalEvent decodes a wire frame into its concrete event type, selected
// by the "kind" discriminator.
func UnmarshalEvent(data jsontext.Value) (Event, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}

	switch head.Kind {
	case EventKindTask:
		var ev TaskEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode task event: %w", err)
		}
		return &ev, nil
	case EventKindStatusUpdate:
		var ev StatusUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode status update event: %w", err)
		}
		return &ev, nil
	case EventKindArtifactUpdate:
		var ev ArtifactUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode artifact update event: %w", err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown event kind: %q", head.Kind)
	}
}
