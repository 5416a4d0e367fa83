// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the A2A task client: unary JSON-RPC calls over
// HTTP and live task update streams over WebSocket with automatic
// reconnect.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/a2a"
)

// Client talks to one A2A server.
type Client struct {
	rpcURL         string
	wsURL          string
	httpClient     *http.Client
	logger         *slog.Logger
	retry          RetryPolicy
	receiveTimeout time.Duration

	nextID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for unary calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy sets the stream reconnect behavior.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithReceiveTimeout sets how long a stream read may go without any frame
// before the connection is treated as dead. The zero value keeps
// [DefaultReceiveTimeout].
func WithReceiveTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.receiveTimeout = d
		}
	}
}

// New creates a Client for the server at baseURL, e.g.
// "http://localhost:8080". The unary endpoint is derived as /rpc and the
// stream endpoint as /ws with the matching ws scheme.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", u.Scheme)
	}

	wsScheme := "ws"
	if u.Scheme == "https" {
		wsScheme = "wss"
	}

	c := &Client{
		rpcURL:         u.JoinPath("rpc").String(),
		wsURL:          (&url.URL{Scheme: wsScheme, Host: u.Host, Path: "/ws"}).String(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         slog.Default(),
		retry:          DefaultRetryPolicy(),
		receiveTimeout: DefaultReceiveTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// call performs one unary JSON-RPC exchange. A non-nil out receives the
// decoded result; the server's error object is returned as-is so callers
// can inspect its code.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	req, err := a2a.NewRequest(id, method, params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp a2a.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode response for %s (HTTP %d): %w", method, httpResp.StatusCode, err)
	}
	if resp.Err != nil {
		return resp.Err
	}
	if out == nil || resp.NullResult() {
		return nil
	}
	return resp.UnmarshalResult(out)
}

// GetTask retrieves the current snapshot of a task. historyLength truncates
// the returned history to the most recent n messages; nil keeps it all.
func (c *Client) GetTask(ctx context.Context, taskID string, historyLength *int) (*a2a.Task, error) {
	var task a2a.Task
	err := c.call(ctx, a2a.MethodTasksGet, a2a.TaskQueryParams{ID: taskID, HistoryLength: historyLength}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// SendMessage routes a message to a task, creating it when no task with the
// ID exists. An empty ID lets the server mint one; the returned task
// carries the final ID.
func (c *Client) SendMessage(ctx context.Context, params *a2a.SendParams) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodTasksSend, params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a non-terminal task and returns its final snapshot.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, a2a.MethodTasksCancel, a2a.TaskIDParams{ID: taskID}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns one page of tasks. Pass the previous result's NextCursor
// to continue; an empty NextCursor means the listing is exhausted.
func (c *Client) ListTasks(ctx context.Context, params a2a.ListParams) (*a2a.ListResult, error) {
	var result a2a.ListResult
	if err := c.call(ctx, a2a.MethodTasksList, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resubscribe performs the unary form of the subscription: the current
// snapshot when the task exists, (nil, nil) when it does not exist yet.
func (c *Client) Resubscribe(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	err := c.call(ctx, a2a.MethodTasksResubscribe, a2a.TaskQueryParams{ID: taskID}, &task)
	if err != nil {
		return nil, err
	}
	if task.ID == "" {
		// Null result: the task does not exist yet, which subscription
		// semantics treat as acceptance rather than failure.
		return nil, nil
	}
	return &task, nil
}

// SetPushConfig creates or replaces a push notification config for a task.
// The returned config carries the server-assigned ID when the request left
// it empty.
func (c *Client) SetPushConfig(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) (*a2a.PushNotificationConfig, error) {
	var out a2a.PushNotificationConfig
	err := c.call(ctx, a2a.MethodPushConfigSet, a2a.SetPushConfigParams{TaskID: taskID, Config: config}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPushConfig retrieves one push notification config.
func (c *Client) GetPushConfig(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	var out a2a.PushNotificationConfig
	err := c.call(ctx, a2a.MethodPushConfigGet, a2a.PushConfigParams{TaskID: taskID, ConfigID: configID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPushConfigs lists a task's push notification configs.
func (c *Client) ListPushConfigs(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	var out a2a.ListPushConfigsResult
	err := c.call(ctx, a2a.MethodPushConfigList, a2a.PushConfigParams{TaskID: taskID}, &out)
	if err != nil {
		return nil, err
	}
	return out.Configs, nil
}

// DeletePushConfig removes one push notification config.
func (c *Client) DeletePushConfig(ctx context.Context, taskID, configID string) error {
	return c.call(ctx, a2a.MethodPushConfigDelete, a2a.PushConfigParams{TaskID: taskID, ConfigID: configID}, nil)
}
