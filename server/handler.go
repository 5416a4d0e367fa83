// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the A2A task server: the JSON-RPC request
// processor, the HTTP and WebSocket transports, webhook push delivery, and
// the wiring between them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// DefaultPageSize is the tasks/list page size applied when the request
// leaves the limit unset.
const DefaultPageSize = 50

// MaxPageSize caps the tasks/list page size a client may request.
const MaxPageSize = 200

// Handler processes JSON-RPC requests against the task manager. It is
// transport-agnostic: the HTTP endpoint and WebSocket sessions both dispatch
// through it.
type Handler struct {
	manager *task.Manager
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// NewHandler creates a Handler. Metrics may be nil.
func NewHandler(manager *task.Manager, logger *slog.Logger, metrics *Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: manager,
		logger:  logger,
		tracer:  otel.Tracer("github.com/agentwire/a2a/server"),
		metrics: metrics,
	}
}

// Handle dispatches one request and returns its response. Subscribe-class
// methods are handled in their unary degradation: tasks/resubscribe answers
// with the current snapshot, or a null result when the task does not exist
// yet, and tasks/sendSubscribe behaves like tasks/send. Live streaming is
// the WebSocket transport's job.
func (h *Handler) Handle(ctx context.Context, req *a2a.Request) *a2a.Response {
	ctx, span := h.tracer.Start(ctx, "rpc.handle",
		trace.WithAttributes(attribute.String("rpc.method", req.Method)))
	defer span.End()

	if h.metrics != nil {
		h.metrics.RequestsTotal.WithLabelValues(req.Method).Inc()
	}

	resp := h.dispatch(ctx, req)
	if resp.Err != nil {
		h.logger.Debug("request failed",
			"method", req.Method, "code", resp.Err.Code, "error", resp.Err.Message)
		if h.metrics != nil {
			h.metrics.RequestErrors.WithLabelValues(req.Method, strconv.Itoa(resp.Err.Code)).Inc()
		}
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, req *a2a.Request) *a2a.Response {
	if req.JSONRPC != a2a.Version {
		return a2a.NewErrorResponse(req.ID, &a2a.Error{
			Code:    a2a.ErrorCodeInvalidRequest,
			Message: fmt.Sprintf("unsupported jsonrpc version: %q", req.JSONRPC),
		})
	}

	switch req.Method {
	case a2a.MethodTasksGet:
		return h.handleGet(ctx, req)
	case a2a.MethodTasksSend, a2a.MethodTasksSendSubscribe:
		return h.handleSend(ctx, req)
	case a2a.MethodTasksCancel:
		return h.handleCancel(ctx, req)
	case a2a.MethodTasksList:
		return h.handleList(ctx, req)
	case a2a.MethodTasksResubscribe:
		return h.handleResubscribe(ctx, req)
	case a2a.MethodPushConfigSet:
		return h.handlePushConfigSet(ctx, req)
	case a2a.MethodPushConfigGet:
		return h.handlePushConfigGet(ctx, req)
	case a2a.MethodPushConfigList:
		return h.handlePushConfigList(ctx, req)
	case a2a.MethodPushConfigDelete:
		return h.handlePushConfigDelete(ctx, req)
	default:
		return a2a.NewErrorResponse(req.ID, &a2a.Error{
			Code:    a2a.ErrorCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		})
	}
}

func (h *Handler) handleGet(ctx context.Context, req *a2a.Request) *a2a.Response {
	var params a2a.TaskQueryParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.ID == "" {
		return invalidParams(req.ID, "task ID is required")
	}

	t, err := h.manager.Get(ctx, params.ID, params.HistoryLength)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, t)
}

func (h *Handler) handleSend(ctx context.Context, req *a2a.Request) *a2a.Response {
	var params a2a.SendParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.Message == nil {
		return invalidParams(req.ID, "message is required")
	}
	if err := params.Message.Validate(); err != nil {
		return invalidParams(req.ID, err.Error())
	}

	t, err := h.manager.Send(ctx, &params)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, t)
}

func (h *Handler) handleCancel(ctx context.Context, req *a2a.Request) *a2a.Response {
	var params a2a.TaskIDParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.ID == "" {
		return invalidParams(req.ID, "task ID is required")
	}

	t, err := h.manager.Cancel(ctx, params.ID)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	if h.metrics != nil {
		h.metrics.StateTransitions.WithLabelValues(string(a2a.TaskStateCanceled)).Inc()
	}
	return h.result(req.ID, t)
}

func (h *Handler) handleList(ctx context.Context, req *a2a.Request) *a2a.Response {
	var params a2a.ListParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	for _, st := range params.States {
		if err := st.Validate(); err != nil {
			return invalidParams(req.ID, err.Error())
		}
	}

	limit := params.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	query := task.ListQuery{States: params.States, Limit: limit}
	if params.Cursor != "" {
		cursor, err := a2a.DecodeCursor(params.Cursor)
		if err != nil {
			return invalidParams(req.ID, err.Error())
		}
		query.After = cursor
	}

	tasks, err := h.manager.List(ctx, query)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}

	result := a2a.ListResult{Tasks: tasks}
	// A full page may have more behind it; hand back a cursor pinned to the
	// last row's sort key.
	if len(tasks) == limit {
		last := tasks[len(tasks)-1]
		result.NextCursor = a2a.Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID}.Encode()
	}
	return h.result(req.ID, result)
}

// handleResubscribe is the unary degradation of the streaming subscribe: the
// snapshot if the task exists, a successful null if it does not. Absence is
// not an error here because the subscription contract admits task IDs that
// have not been created yet.
func (h *Handler) handleResubscribe(ctx context.Context, req *a2a.Request) *a2a.Response {
	var params a2a.TaskQueryParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.ID == "" {
		return invalidParams(req.ID, "task ID is required")
	}

	t, err := h.manager.Get(ctx, params.ID, params.HistoryLength)
	if err != nil {
		var notFound a2a.TaskNotFoundError
		if errors.As(err, &notFound) {
			return h.result(req.ID, nil)
		}
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, t)
}

func (h *Handler) handlePushConfigSet(ctx context.Context, req *a2a.Request) *a2a.Response {
	store := h.manager.PushConfigs()
	if store == nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(a2a.PushNotificationNotSupportedError{}))
	}

	var params a2a.SetPushConfigParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.TaskID == "" {
		return invalidParams(req.ID, "task ID is required")
	}
	if params.Config == nil {
		return invalidParams(req.ID, "config is required")
	}
	if err := params.Config.Validate(); err != nil {
		return invalidParams(req.ID, err.Error())
	}

	if err := store.Set(ctx, params.TaskID, params.Config); err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, params.Config)
}

func (h *Handler) handlePushConfigGet(ctx context.Context, req *a2a.Request) *a2a.Response {
	store := h.manager.PushConfigs()
	if store == nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(a2a.PushNotificationNotSupportedError{}))
	}

	var params a2a.PushConfigParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.TaskID == "" || params.ConfigID == "" {
		return invalidParams(req.ID, "task ID and config ID are required")
	}

	config, err := store.Get(ctx, params.TaskID, params.ConfigID)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, config)
}

func (h *Handler) handlePushConfigList(ctx context.Context, req *a2a.Request) *a2a.Response {
	store := h.manager.PushConfigs()
	if store == nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(a2a.PushNotificationNotSupportedError{}))
	}

	var params a2a.PushConfigParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.TaskID == "" {
		return invalidParams(req.ID, "task ID is required")
	}

	configs, err := store.List(ctx, params.TaskID)
	if err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, a2a.ListPushConfigsResult{TaskID: params.TaskID, Configs: configs})
}

func (h *Handler) handlePushConfigDelete(ctx context.Context, req *a2a.Request) *a2a.Response {
	store := h.manager.PushConfigs()
	if store == nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(a2a.PushNotificationNotSupportedError{}))
	}

	var params a2a.PushConfigParams
	if resp := decodeParams(req, &params); resp != nil {
		return resp
	}
	if params.TaskID == "" || params.ConfigID == "" {
		return invalidParams(req.ID, "task ID and config ID are required")
	}

	if err := store.Delete(ctx, params.TaskID, params.ConfigID); err != nil {
		return a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err))
	}
	return h.result(req.ID, nil)
}

func (h *Handler) result(id jsontext.Value, v any) *a2a.Response {
	resp, err := a2a.NewResponse(id, v)
	if err != nil {
		h.logger.Error("marshal response failed", "error", err)
		return a2a.NewErrorResponse(id, &a2a.Error{
			Code:    a2a.ErrorCodeInternal,
			Message: "failed to encode response",
		})
	}
	return resp
}

func decodeParams(req *a2a.Request, v any) *a2a.Response {
	if len(req.Params) == 0 {
		return invalidParams(req.ID, "params are required")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return invalidParams(req.ID, fmt.Sprintf("malformed params: %v", err))
	}
	return nil
}

func invalidParams(id jsontext.Value, msg string) *a2a.Response {
	return a2a.NewErrorResponse(id, &a2a.Error{Code: a2a.ErrorCodeInvalidParams, Message: msg})
}
