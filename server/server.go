// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// reapInterval is how often idle subscriptions are checked against the TTL.
const reapInterval = time.Minute

// Server ties the request processor to its transports: the unary JSON-RPC
// endpoint at /rpc, the streaming WebSocket endpoint at /ws, Prometheus
// metrics at /metrics, and the agent card at /.well-known/agent.json.
type Server struct {
	cfg     Config
	manager *task.Manager
	handler *Handler
	store   task.TaskStore
	logger  *slog.Logger

	httpServer *http.Server
	reapStop   chan struct{}
	reapDone   chan struct{}
}

// New assembles a Server from its parts. The manager, its store, and the
// handler are injected so deployments control storage and instrumentation.
func New(cfg Config, manager *task.Manager, store task.TaskStore, handler *Handler, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		handler:  handler,
		store:    store,
		logger:   logger,
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}

	mux := http.NewServeMux()
	if cfg.Transport == TransportHTTP || cfg.Transport == TransportBoth {
		mux.HandleFunc("POST /rpc", s.serveRPC)
	}
	if cfg.Transport == TransportWS || cfg.Transport == TransportBoth {
		mux.HandleFunc("GET /ws", handler.ServeWS)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /.well-known/agent.json", s.serveAgentCard)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start listens and serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	go s.reapLoop()

	s.logger.Info("server listening",
		"addr", s.cfg.Addr(), "transport", s.cfg.Transport, "storage", s.cfg.Storage)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections, stops the reaper, and closes the manager.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.reapStop)

	err := s.httpServer.Shutdown(ctx)
	<-s.reapDone
	s.manager.Close()

	if cerr := s.store.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	s.logger.Info("server stopped")
	return err
}

// serveRPC handles one unary JSON-RPC request.
func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeResponse(w, s.logger, a2a.NewErrorResponse(nil, &a2a.Error{
			Code:    a2a.ErrorCodeInvalidRequest,
			Message: "failed to read request body",
		}))
		return
	}

	var req a2a.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, s.logger, a2a.NewErrorResponse(nil, &a2a.Error{
			Code:    a2a.ErrorCodeJSONParse,
			Message: fmt.Sprintf("malformed request: %v", err),
		}))
		return
	}

	writeResponse(w, s.logger, s.handler.Handle(r.Context(), &req))
}

func writeResponse(w http.ResponseWriter, logger *slog.Logger, resp *a2a.Response) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("marshal response failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// serveAgentCard publishes the discovery document.
func (s *Server) serveAgentCard(w http.ResponseWriter, r *http.Request) {
	card := a2a.AgentCard{
		Name:        s.cfg.AgentName,
		Description: s.cfg.AgentDescription,
		URL:         "http://" + s.cfg.Addr() + "/rpc",
		Version:     s.cfg.AgentVersion,
		Capabilities: a2a.AgentCapabilities{
			Streaming:         s.cfg.Transport != TransportHTTP,
			PushNotifications: s.manager.PushConfigs() != nil,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(card)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// reapLoop periodically expires subscriptions that outlived the TTL without
// their task ever being created. Subscriptions to existing tasks are left
// alone: their lifecycle ends with the task's final event.
func (s *Server) reapLoop() {
	defer close(s.reapDone)
	if s.cfg.SubscriptionTTL <= 0 {
		return
	}

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.manager.ReapIdle(context.Background(), s.cfg.SubscriptionTTL)
		case <-s.reapStop:
			return
		}
	}
}
