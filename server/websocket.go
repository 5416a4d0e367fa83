// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/event"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent before the connection is
	// considered dead. Pings go out at pingPeriod, which must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps an inbound request frame.
	maxMessageSize = 1 << 20

	// sessionSendBuffer is the outbound frame queue per connection.
	sessionSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The RPC surface carries its own auth; the transport accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSession is one WebSocket connection. All writes to the peer funnel
// through the send channel into writePump, since gorilla connections permit
// a single concurrent writer.
type wsSession struct {
	conn    *websocket.Conn
	handler *Handler
	logger  *slog.Logger
	metrics *Metrics

	send chan *a2a.Response

	mu   sync.Mutex
	subs []*event.Subscriber

	closeOnce sync.Once
	done      chan struct{}
}

// ServeWS upgrades the request and runs the session until either side
// disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &wsSession{
		conn:    conn,
		handler: h,
		logger:  h.logger.With("remote", r.RemoteAddr),
		metrics: h.metrics,
		send:    make(chan *a2a.Response, sessionSendBuffer),
		done:    make(chan struct{}),
	}

	go s.writePump()
	s.readPump(r.Context())
}

func (s *wsSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()

		s.mu.Lock()
		subs := s.subs
		s.subs = nil
		s.mu.Unlock()
		for _, sub := range subs {
			s.handler.manager.Unsubscribe(sub)
			if s.metrics != nil {
				s.metrics.ActiveSubscribers.Dec()
			}
		}
	})
}

// enqueue hands a frame to writePump. It reports false when the session is
// shutting down.
func (s *wsSession) enqueue(resp *a2a.Response) bool {
	select {
	case s.send <- resp:
		return true
	case <-s.done:
		return false
	}
}

func (s *wsSession) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req a2a.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.enqueue(a2a.NewErrorResponse(nil, &a2a.Error{
				Code:    a2a.ErrorCodeJSONParse,
				Message: fmt.Sprintf("malformed request: %v", err),
			}))
			continue
		}

		s.handleRequest(ctx, &req)
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case resp := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("marshal frame failed", "error", err)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// handleRequest routes one inbound frame. Subscribe-class methods stay on
// this transport as live streams; everything else degrades to the unary
// handler.
func (s *wsSession) handleRequest(ctx context.Context, req *a2a.Request) {
	switch req.Method {
	case a2a.MethodTasksResubscribe:
		s.handleResubscribe(ctx, req)
	case a2a.MethodTasksSendSubscribe:
		s.handleSendSubscribe(ctx, req)
	default:
		s.enqueue(s.handler.Handle(ctx, req))
	}
}

// handleResubscribe opens a live subscription. The handshake response
// carries the current snapshot, or null when the task does not exist yet;
// in either case the subscription is registered and typed update frames
// follow on this connection, correlated by the request ID.
func (s *wsSession) handleResubscribe(ctx context.Context, req *a2a.Request) {
	var params a2a.TaskQueryParams
	if resp := decodeParams(req, &params); resp != nil {
		s.enqueue(resp)
		return
	}
	if params.ID == "" {
		s.enqueue(invalidParams(req.ID, "task ID is required"))
		return
	}

	sub, snapshot, err := s.handler.manager.Subscribe(ctx, params.ID)
	if err != nil {
		s.enqueue(a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err)))
		return
	}
	s.attach(sub, req, snapshot != nil)

	if snapshot == nil {
		s.enqueue(s.handler.result(req.ID, nil))
		return
	}
	s.enqueue(s.handler.result(req.ID, snapshot.TrimHistory(params.HistoryLength)))
}

// handleSendSubscribe routes the message, then subscribes to the resulting
// task. The handshake response is the post-send snapshot; because it is
// fetched atomically with the registration, no update can fall in between.
func (s *wsSession) handleSendSubscribe(ctx context.Context, req *a2a.Request) {
	var params a2a.SendParams
	if resp := decodeParams(req, &params); resp != nil {
		s.enqueue(resp)
		return
	}
	if params.Message == nil {
		s.enqueue(invalidParams(req.ID, "message is required"))
		return
	}

	task, err := s.handler.manager.Send(ctx, &params)
	if err != nil {
		s.enqueue(a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err)))
		return
	}

	sub, snapshot, err := s.handler.manager.Subscribe(ctx, task.ID)
	if err != nil {
		s.enqueue(a2a.NewErrorResponse(req.ID, a2a.ErrorFor(err)))
		return
	}
	s.attach(sub, req, snapshot != nil)

	if snapshot == nil {
		snapshot = task
	}
	s.enqueue(s.handler.result(req.ID, snapshot))
}

// attach registers the subscription with the session and starts forwarding
// its events as frames correlated to the originating request. skipSnapshot
// is set when the handshake response already carried the snapshot the
// manager also delivered into the channel.
func (s *wsSession) attach(sub *event.Subscriber, req *a2a.Request, skipSnapshot bool) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Inc()
	}

	go s.forward(sub, req, skipSnapshot)
}

// forward drains one subscription into the send queue.
func (s *wsSession) forward(sub *event.Subscriber, req *a2a.Request, skipSnapshot bool) {
	first := true
	for ev := range sub.Events() {
		if first {
			first = false
			if skipSnapshot {
				if _, ok := ev.(*a2a.TaskEvent); ok {
					continue
				}
			}
		}
		resp := s.handler.result(req.ID, ev)
		if !s.enqueue(resp) {
			return
		}
	}
	s.detach(sub)
}

func (s *wsSession) detach(sub *event.Subscriber) {
	s.mu.Lock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			if s.metrics != nil {
				s.metrics.ActiveSubscribers.Dec()
			}
			break
		}
	}
	s.mu.Unlock()
}
