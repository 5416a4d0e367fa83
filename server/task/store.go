// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements task persistence and the task manager that
// coordinates storage with the broadcast hub. Storage backends are
// interchangeable behind the TaskStore contract; in-memory and GORM-backed
// implementations are provided.
package task

import (
	"context"

	"github.com/agentwire/a2a"
)

// ListQuery selects and pages tasks. Results are ordered by
// (updated_at desc, id asc); After resumes strictly past that position.
type ListQuery struct {
	// States filters tasks to the given lifecycle states. Empty means all.
	States []a2a.TaskState

	// After is a keyset cursor: only tasks sorting strictly after this
	// position are returned.
	After *a2a.Cursor

	// Limit caps the number of returned tasks. Zero means no cap.
	Limit int
}

// TaskStore is the persistence contract for tasks. Implementations must be
// safe for concurrent use and must conform in observable behavior, not in
// physical layout.
type TaskStore interface {
	// Save persists a task, inserting or replacing by ID.
	Save(ctx context.Context, task *a2a.Task) error

	// Get retrieves a task by ID. Returns [a2a.TaskNotFoundError] if no task
	// with the ID exists.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Delete removes a task by ID. Returns [a2a.TaskNotFoundError] if no
	// task with the ID exists.
	Delete(ctx context.Context, taskID string) error

	// List returns tasks matching the query in (updated_at desc, id asc)
	// order.
	List(ctx context.Context, query ListQuery) ([]*a2a.Task, error)

	// Initialize prepares the backend for use (tables, indexes).
	Initialize(ctx context.Context) error

	// Close shuts the backend down.
	Close(ctx context.Context) error
}

// PushConfigStore is the persistence contract for push notification
// configs, keyed by (task ID, config ID). Config lifecycle is independent
// of task lifecycle: a config may be provisioned before its task exists.
type PushConfigStore interface {
	// Set inserts or replaces a config for the task.
	Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) error

	// Get retrieves one config. Returns [a2a.ConfigNotFoundError] if absent.
	Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error)

	// List returns all configs for the task, ordered by config ID.
	List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error)

	// Delete removes one config. Returns [a2a.ConfigNotFoundError] if absent.
	Delete(ctx context.Context, taskID, configID string) error

	// Initialize prepares the backend for use.
	Initialize(ctx context.Context) error

	// Close shuts the backend down.
	Close(ctx context.Context) error
}
