// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
)

// StoreError wraps a storage backend failure with the operation and task it
// occurred on.
type StoreError struct {
	Operation string
	TaskID    string
	Err       error
}

// Error returns the error message.
func (e StoreError) Error() string {
	return fmt.Sprintf("task store %s failed for task %s: %v", e.Operation, e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e StoreError) Unwrap() error {
	return e.Err
}

// ValidationError reports a task that failed validation before storage.
type ValidationError struct {
	TaskID string
	Err    error
}

// Error returns the error message.
func (e ValidationError) Error() string {
	return fmt.Sprintf("task %s validation failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error.
func (e ValidationError) Unwrap() error {
	return e.Err
}
