// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instruments.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestErrors     *prometheus.CounterVec
	TasksCreated      prometheus.Counter
	StateTransitions  *prometheus.CounterVec
	ActiveSubscribers prometheus.Gauge
	DroppedSubs       prometheus.Counter
	PushDeliveries    *prometheus.CounterVec
}

// NewMetrics registers the server's instruments on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a private
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_rpc_requests_total",
			Help: "JSON-RPC requests processed, by method.",
		}, []string{"method"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_rpc_request_errors_total",
			Help: "JSON-RPC error responses, by method and error code.",
		}, []string{"method", "code"}),
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2a_tasks_created_total",
			Help: "Tasks created.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_task_state_transitions_total",
			Help: "Task state transitions applied, by target state.",
		}, []string{"state"}),
		ActiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "a2a_active_subscribers",
			Help: "Currently registered event subscribers.",
		}),
		DroppedSubs: factory.NewCounter(prometheus.CounterOpts{
			Name: "a2a_subscribers_dropped_total",
			Help: "Subscribers dropped for falling behind.",
		}),
		PushDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "a2a_push_deliveries_total",
			Help: "Push notification webhook deliveries, by outcome.",
		}, []string{"outcome"}),
	}
}
