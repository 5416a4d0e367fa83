// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Version is the JSON-RPC protocol version carried by every message.
const Version = "2.0"

// A2A RPC method names.
const (
	// MethodTasksGet retrieves the current snapshot of a task.
	MethodTasksGet = "tasks/get"
	// MethodTasksSend submits a message to a task, creating it if needed.
	MethodTasksSend = "tasks/send"
	// MethodTasksCancel cancels a non-terminal task.
	MethodTasksCancel = "tasks/cancel"
	// MethodTasksList pages through tasks.
	MethodTasksList = "tasks/list"
	// MethodTasksResubscribe subscribes to a task's update stream. The task
	// does not have to exist yet.
	MethodTasksResubscribe = "tasks/resubscribe"
	// MethodTasksSendSubscribe submits a message and subscribes to the
	// resulting task's updates in one call.
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	// MethodPushConfigSet creates or replaces a push notification config.
	MethodPushConfigSet = "tasks/pushNotificationConfig/set"
	// MethodPushConfigGet retrieves a push notification config.
	MethodPushConfigGet = "tasks/pushNotificationConfig/get"
	// MethodPushConfigList lists a task's push notification configs.
	MethodPushConfigList = "tasks/pushNotificationConfig/list"
	// MethodPushConfigDelete removes a push notification config.
	MethodPushConfigDelete = "tasks/pushNotificationConfig/delete"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id,omitzero"`
	Method  string         `json:"method"`
	Params  jsontext.Value `json:"params,omitzero"`
}

// NewRequest builds a request with the given string ID, method, and params.
func NewRequest(id, method string, params any) (*Request, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshal request ID: %w", err)
	}
	return &Request{
		JSONRPC: Version,
		ID:      rawID,
		Method:  method,
		Params:  raw,
	}, nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Err is set;
// a Result holding JSON null is a valid successful outcome and is how
// subscribe-class methods acknowledge a task that does not exist yet.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      jsontext.Value `json:"id,omitzero"`
	Result  jsontext.Value `json:"result,omitzero"`
	Err     *Error         `json:"error,omitzero"`
}

// NewResponse builds a successful response. A nil result marshals to an
// explicit JSON null, not an omitted field.
func NewResponse(id jsontext.Value, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id jsontext.Value, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Err: rpcErr}
}

// NullResult reports whether the response is a successful null: the quiet
// acceptance subscribe-class methods return when the task does not exist.
func (r *Response) NullResult() bool {
	return r.Err == nil && string(r.Result) == "null"
}

// UnmarshalResult decodes the response result into v, or surfaces the
// response's error.
func (r *Response) UnmarshalResult(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// ErrorFor converts a domain error into a JSON-RPC error object, using the
// code carried by [ProtocolError] implementations and falling back to the
// internal error code.
func ErrorFor(err error) *Error {
	var perr ProtocolError
	if errors.As(err, &perr) {
		return &Error{Code: perr.Code(), Message: perr.Error()}
	}
	return &Error{Code: ErrorCodeInternal, Message: err.Error()}
}

// TaskQueryParams are the parameters of tasks/get and tasks/resubscribe.
type TaskQueryParams struct {
	ID string `json:"id"`

	// HistoryLength truncates the returned history to the most recent N
	// messages. Zero omits history entirely; nil keeps it all.
	HistoryLength *int `json:"historyLength,omitzero"`
}

// TaskIDParams are the parameters of tasks/cancel.
type TaskIDParams struct {
	ID string `json:"id"`
}

// SendParams are the parameters of tasks/send and tasks/sendSubscribe. An
// empty ID asks the server to mint one.
type SendParams struct {
	ID        string         `json:"id,omitzero"`
	ContextID string         `json:"contextId,omitzero"`
	Message   *Message       `json:"message"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// ListParams are the parameters of tasks/list.
type ListParams struct {
	// States filters tasks to the given lifecycle states. Empty means all.
	States []TaskState `json:"states,omitzero"`

	// Cursor continues a previous listing. Empty starts from the newest task.
	Cursor string `json:"cursor,omitzero"`

	// Limit caps the page size. Zero applies the server default.
	Limit int `json:"limit,omitzero"`
}

// ListResult is the result of tasks/list.
type ListResult struct {
	Tasks []*Task `json:"tasks"`

	// NextCursor resumes listing after the last returned task. Empty when
	// the listing is exhausted.
	NextCursor string `json:"nextCursor,omitzero"`
}

// PushConfigParams identify one push notification config.
type PushConfigParams struct {
	TaskID   string `json:"taskId"`
	ConfigID string `json:"configId,omitzero"`
}

// SetPushConfigParams are the parameters of tasks/pushNotificationConfig/set.
type SetPushConfigParams struct {
	TaskID string                  `json:"taskId"`
	Config *PushNotificationConfig `json:"config"`
}

// ListPushConfigsResult is the result of tasks/pushNotificationConfig/list.
type ListPushConfigsResult struct {
	TaskID  string                    `json:"taskId"`
	Configs []*PushNotificationConfig `json:"configs"`
}
