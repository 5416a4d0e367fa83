// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// ErrorCodeJSONParse indicates an invalid JSON payload.
	ErrorCodeJSONParse = -32700
	// ErrorCodeInvalidRequest indicates request payload validation failed.
	ErrorCodeInvalidRequest = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist.
	ErrorCodeMethodNotFound = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams = -32602
	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal = -32603
)

// A2A-specific error codes.
const (
	// ErrorCodeTaskNotFound indicates the specified task ID was not found.
	ErrorCodeTaskNotFound = -32001
	// ErrorCodeTaskNotCancelable indicates the task is in a terminal state.
	ErrorCodeTaskNotCancelable = -32002
	// ErrorCodePushNotificationNotSupported indicates the deployment carries
	// no push notification capability.
	ErrorCodePushNotificationNotSupported = -32003
	// ErrorCodeUnsupportedOperation indicates the operation is not supported.
	ErrorCodeUnsupportedOperation = -32004
	// ErrorCodeContentTypeNotSupported indicates a content type mismatch.
	ErrorCodeContentTypeNotSupported = -32005
	// ErrorCodeInvalidAgentResponse indicates the agent produced a response
	// the protocol layer could not interpret.
	ErrorCodeInvalidAgentResponse = -32006
	// ErrorCodeExtendedCardNotConfigured indicates no authenticated extended
	// agent card is configured.
	ErrorCodeExtendedCardNotConfigured = -32007
)

// ProtocolError is implemented by domain errors that map to a JSON-RPC
// error code.
type ProtocolError interface {
	error
	Code() int
}

// TaskNotFoundError reports that no task exists with the given ID.
type TaskNotFoundError struct {
	TaskID string
}

// Error returns the error message.
func (e TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// Code returns the JSON-RPC error code.
func (e TaskNotFoundError) Code() int { return ErrorCodeTaskNotFound }

// ConfigNotFoundError reports that no push notification config exists for
// the given (task ID, config ID) pair.
type ConfigNotFoundError struct {
	TaskID   string
	ConfigID string
}

// Error returns the error message.
func (e ConfigNotFoundError) Error() string {
	return fmt.Sprintf("push notification config not found: task %s config %s", e.TaskID, e.ConfigID)
}

// Code returns the JSON-RPC error code.
func (e ConfigNotFoundError) Code() int { return ErrorCodeTaskNotFound }

// TaskNotCancelableError reports a cancel attempt on a task already in a
// terminal state.
type TaskNotCancelableError struct {
	TaskID string
	State  TaskState
}

// Error returns the error message.
func (e TaskNotCancelableError) Error() string {
	return fmt.Sprintf("task %s cannot be canceled: already %s", e.TaskID, e.State)
}

// Code returns the JSON-RPC error code.
func (e TaskNotCancelableError) Code() int { return ErrorCodeTaskNotCancelable }

// InvalidTransitionError reports a status transition the state machine
// forbids. The task is left unchanged.
type InvalidTransitionError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

// Error returns the error message.
func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// Code returns the JSON-RPC error code.
func (e InvalidTransitionError) Code() int { return ErrorCodeInvalidRequest }

// TaskNotUpdatableError reports an append attempt on a task whose status is
// terminal. History and artifacts freeze at the terminal transition.
type TaskNotUpdatableError struct {
	TaskID string
	State  TaskState
}

// Error returns the error message.
func (e TaskNotUpdatableError) Error() string {
	return fmt.Sprintf("task %s in state %s cannot be updated", e.TaskID, e.State)
}

// Code returns the JSON-RPC error code.
func (e TaskNotUpdatableError) Code() int { return ErrorCodeInvalidRequest }

// PushNotificationNotSupportedError reports that the deployment has no push
// notification config store.
type PushNotificationNotSupportedError struct{}

// Error returns the error message.
func (e PushNotificationNotSupportedError) Error() string {
	return "push notifications are not supported"
}

// Code returns the JSON-RPC error code.
func (e PushNotificationNotSupportedError) Code() int {
	return ErrorCodePushNotificationNotSupported
}

// UnsupportedOperationError reports an operation this deployment does not
// support.
type UnsupportedOperationError struct {
	Operation string
}

// Error returns the error message.
func (e UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation not supported: %s", e.Operation)
}

// Code returns the JSON-RPC error code.
func (e UnsupportedOperationError) Code() int { return ErrorCodeUnsupportedOperation }

// ContentTypeNotSupportedError reports a content type the agent cannot
// accept.
type ContentTypeNotSupportedError struct {
	ContentType string
}

// Error returns the error message.
func (e ContentTypeNotSupportedError) Error() string {
	return fmt.Sprintf("content type not supported: %s", e.ContentType)
}

// Code returns the JSON-RPC error code.
func (e ContentTypeNotSupportedError) Code() int { return ErrorCodeContentTypeNotSupported }
