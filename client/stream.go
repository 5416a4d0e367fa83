// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/agentwire/a2a"
)

// DefaultReceiveTimeout is how long a stream read may go without any frame,
// including server pings, before the connection is treated as dead. Override
// per client with [WithReceiveTimeout].
const DefaultReceiveTimeout = 90 * time.Second

// Subscription is a live stream of one task's update events. Events arrive
// on Events in order; the channel closes after the task's final event, after
// Close, or when the reconnect policy is exhausted. Err reports why a stream
// ended early.
type Subscription struct {
	events chan a2a.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Events returns the subscription's event channel.
func (s *Subscription) Events() <-chan a2a.Event { return s.events }

// Err returns the error that ended the stream, if any. It is valid after
// the events channel closes.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription and releases its connection.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Subscribe opens a live subscription to the task's update events. The task
// does not have to exist: the server accepts the subscription either way,
// and events start flowing once a task with the ID is created. When the
// task already exists, the first event is a snapshot of its current state.
//
// Dropped connections reconnect and resubscribe under the client's retry
// policy; each reconnect starts with a fresh snapshot, so no intermediate
// state is silently lost.
func (c *Client) Subscribe(ctx context.Context, taskID string) (*Subscription, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID is required")
	}
	return c.stream(ctx, taskID, nil)
}

// SendSubscribe routes a message to the task and subscribes to its updates
// in one exchange. The first event is the post-send snapshot.
func (c *Client) SendSubscribe(ctx context.Context, params *a2a.SendParams) (*Subscription, error) {
	if params == nil || params.Message == nil {
		return nil, fmt.Errorf("send params must carry a message")
	}
	return c.stream(ctx, params.ID, params)
}

// stream dials the WebSocket endpoint and runs the receive loop. A non-nil
// send is delivered with the opening request; reconnects always use plain
// resubscribe since the message must not be re-routed.
func (c *Client) stream(ctx context.Context, taskID string, send *a2a.SendParams) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan a2a.Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	conn, snapshot, err := c.open(ctx, taskID, send)
	if err != nil {
		cancel()
		close(sub.events)
		close(sub.done)
		return nil, err
	}
	if snapshot != nil {
		taskID = snapshot.ID
	}

	go c.run(ctx, sub, conn, taskID, snapshot)
	return sub, nil
}

// open dials, issues the opening request, and reads the handshake response.
// The returned snapshot is nil when the task does not exist yet.
func (c *Client) open(ctx context.Context, taskID string, send *a2a.SendParams) (*websocket.Conn, *a2a.Task, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.receiveTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	var req *a2a.Request
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	if send != nil {
		req, err = a2a.NewRequest(id, a2a.MethodTasksSendSubscribe, send)
	} else {
		req, err = a2a.NewRequest(id, a2a.MethodTasksResubscribe, a2a.TaskQueryParams{ID: taskID})
	}
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	if err := writeFrame(conn, req); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("send subscribe request: %w", err)
	}

	resp, err := c.readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("read subscribe handshake: %w", err)
	}
	if resp.Err != nil {
		conn.Close()
		return nil, nil, resp.Err
	}
	if resp.NullResult() {
		return conn, nil, nil
	}

	var task a2a.Task
	if err := resp.UnmarshalResult(&task); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, &task, nil
}

// run pumps events from the connection into the subscription, reconnecting
// on failure until the context ends, the task finishes, or the retry policy
// gives up.
func (c *Client) run(ctx context.Context, sub *Subscription, conn *websocket.Conn, taskID string, snapshot *a2a.Task) {
	defer close(sub.done)
	defer close(sub.events)
	defer func() { conn.Close() }()

	attempt := 0
	for {
		if snapshot != nil {
			ev := a2a.NewTaskEvent(snapshot)
			if !sub.emit(ctx, ev) {
				return
			}
			if ev.IsFinal() {
				return
			}
		}

		err := c.pump(ctx, sub, conn)
		if err == nil || ctx.Err() != nil {
			return
		}

		// Connection died mid-stream; reconnect and resubscribe.
		conn.Close()
		for {
			if c.retry.exhausted(attempt) {
				sub.fail(fmt.Errorf("stream for task %s: reconnect attempts exhausted: %w", taskID, err))
				return
			}
			if werr := c.retry.wait(ctx, attempt); werr != nil {
				return
			}
			attempt++

			next, snap, oerr := c.open(ctx, taskID, nil)
			if oerr != nil {
				c.logger.Debug("stream reconnect failed",
					"task_id", taskID, "attempt", attempt, "error", oerr)
				continue
			}
			c.logger.Info("stream reconnected", "task_id", taskID, "attempt", attempt)
			conn, snapshot = next, snap
			attempt = 0
			break
		}
	}
}

// pump reads frames until the final event (returns nil) or a read error.
// Cancellation closes the connection to unblock the read.
func (c *Client) pump(ctx context.Context, sub *Subscription, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		resp, err := c.readFrame(conn)
		if err != nil {
			return err
		}
		if resp.Err != nil {
			sub.fail(resp.Err)
			return nil
		}
		if resp.NullResult() {
			// Null acknowledgement; nothing to surface.
			continue
		}

		ev, err := a2a.UnmarshalEvent(resp.Result)
		if err != nil {
			c.logger.Warn("dropping undecodable stream frame", "error", err)
			continue
		}
		if !sub.emit(ctx, ev) {
			return nil
		}
		if ev.IsFinal() {
			return nil
		}
	}
}

// emit delivers one event to the consumer. It reports false when the
// subscription context ended.
func (s *Subscription) emit(ctx context.Context, ev a2a.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readFrame(conn *websocket.Conn) (*a2a.Response, error) {
	conn.SetReadDeadline(time.Now().Add(c.receiveTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var resp a2a.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &resp, nil
}
