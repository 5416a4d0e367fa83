// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/agentwire/a2a"
)

// InMemoryTaskStore is an in-memory implementation of TaskStore. Task data
// is lost when the process stops. All operations are safe for concurrent
// use.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates an InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*a2a.Task),
	}
}

// Save persists a task to the in-memory table.
func (s *InMemoryTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return ValidationError{TaskID: task.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy so later caller mutations don't leak into the table.
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Get retrieves a task by ID.
func (s *InMemoryTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.TaskNotFoundError{TaskID: taskID}
	}
	return copyTask(task), nil
}

// Delete removes a task by ID.
func (s *InMemoryTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return a2a.TaskNotFoundError{TaskID: taskID}
	}
	delete(s.tasks, taskID)
	return nil
}

// List returns tasks matching the query, newest first with ascending ID as
// the tie-break.
func (s *InMemoryTaskStore) List(ctx context.Context, query ListQuery) ([]*a2a.Task, error) {
	s.mu.RLock()
	matched := make([]*a2a.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if !matchesStates(task.Status.State, query.States) {
			continue
		}
		if query.After != nil && !query.After.Before(task.UpdatedAt, task.ID) {
			continue
		}
		matched = append(matched, task)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *a2a.Task) int {
		switch {
		case a.UpdatedAt.After(b.UpdatedAt):
			return -1
		case a.UpdatedAt.Before(b.UpdatedAt):
			return 1
		default:
			return cmpString(a.ID, b.ID)
		}
	})

	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}

	out := make([]*a2a.Task, len(matched))
	for i, task := range matched {
		out[i] = copyTask(task)
	}
	return out, nil
}

// Initialize is a no-op for the in-memory store.
func (s *InMemoryTaskStore) Initialize(ctx context.Context) error {
	return nil
}

// Close clears the in-memory table.
func (s *InMemoryTaskStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*a2a.Task)
	return nil
}

// Size returns the current number of stored tasks.
func (s *InMemoryTaskStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func matchesStates(state a2a.TaskState, states []a2a.TaskState) bool {
	if len(states) == 0 {
		return true
	}
	return slices.Contains(states, state)
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// copyTask deep-copies a task so store-internal state never aliases caller
// memory.
func copyTask(task *a2a.Task) *a2a.Task {
	if task == nil {
		return nil
	}

	out := *task
	out.Metadata = maps.Clone(task.Metadata)

	if task.History != nil {
		out.History = make([]*a2a.Message, len(task.History))
		for i, m := range task.History {
			out.History[i] = copyMessage(m)
		}
	}
	if task.Artifacts != nil {
		out.Artifacts = make([]*a2a.Artifact, len(task.Artifacts))
		for i, a := range task.Artifacts {
			out.Artifacts[i] = copyArtifact(a)
		}
	}
	return &out
}

func copyMessage(m *a2a.Message) *a2a.Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Parts = slices.Clone(m.Parts)
	out.Metadata = maps.Clone(m.Metadata)
	return &out
}

func copyArtifact(a *a2a.Artifact) *a2a.Artifact {
	if a == nil {
		return nil
	}
	out := *a
	out.Parts = slices.Clone(a.Parts)
	out.Metadata = maps.Clone(a.Metadata)
	return &out
}
