// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package event implements the broadcast hub that fans task update events
// out to subscribers. Subscription is decoupled from task storage so a
// client may subscribe to a task ID before any task with that ID exists.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentwire/a2a"
)

// DefaultSubscriberBuffer is the per-subscriber event queue depth used when
// no explicit buffer size is configured.
const DefaultSubscriberBuffer = 32

// Subscriber is one registered consumer of a task's update events. Events
// arrive on the channel returned by [Subscriber.Events] in generation order;
// the channel closes when the subscription ends, whether by a final event,
// an explicit Close, or an overflow drop.
type Subscriber struct {
	id           string
	taskID       string
	registeredAt time.Time

	events chan a2a.Event
	once   sync.Once
}

// TaskID returns the task ID the subscriber is registered for.
func (s *Subscriber) TaskID() string { return s.taskID }

// RegisteredAt returns when the subscription was created.
func (s *Subscriber) RegisteredAt() time.Time { return s.registeredAt }

// Events returns the subscriber's event channel.
func (s *Subscriber) Events() <-chan a2a.Event { return s.events }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// deliver attempts a non-blocking send. It reports false when the
// subscriber's buffer is full.
func (s *Subscriber) deliver(ev a2a.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// topic holds the subscriber list for one task ID. Each topic carries its
// own lock so broadcasts for unrelated tasks never serialize on each other.
type topic struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

// Hub fans task update events out to subscribers, one bounded FIFO per
// subscriber. Delivery is best-effort: a subscriber that cannot keep up is
// dropped and must resubscribe, since task state is idempotently
// re-fetchable. Events are never persisted; the task record is the durable
// state.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic

	buffer int
	logger *slog.Logger
	onDrop func(taskID string)
	now    func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber event queue depth.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the hub's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithDropHandler registers a callback invoked whenever a subscriber is
// dropped for falling behind.
func WithDropHandler(fn func(taskID string)) Option {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub creates a Hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics: make(map[string]*topic),
		buffer: DefaultSubscriberBuffer,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) topicFor(taskID string, create bool) *topic {
	h.mu.RLock()
	t := h.topics[taskID]
	h.mu.RUnlock()
	if t != nil || !create {
		return t
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if t = h.topics[taskID]; t == nil {
		t = &topic{subs: make(map[string]*Subscriber)}
		h.topics[taskID] = t
	}
	return t
}

// Subscribe registers a new subscriber for the task ID. The task does not
// have to exist; registration never fails.
func (h *Hub) Subscribe(taskID string) *Subscriber {
	sub := &Subscriber{
		id:           uuid.NewString(),
		taskID:       taskID,
		registeredAt: h.now(),
		events:       make(chan a2a.Event, h.buffer),
	}

	for {
		t := h.topicFor(taskID, true)
		t.mu.Lock()
		t.subs[sub.id] = sub
		t.mu.Unlock()

		// A concurrent removeIfEmpty may have deleted the topic between the
		// lookup and the insert, leaving the subscriber on an orphan that
		// Publish will never find. Re-check the map and retry if so.
		h.mu.RLock()
		current := h.topics[taskID]
		h.mu.RUnlock()
		if current == t {
			return sub
		}
		t.mu.Lock()
		delete(t.subs, sub.id)
		t.mu.Unlock()
	}
}

// Deliver sends one event directly to a single subscriber, bypassing
// broadcast. The task manager uses this for the synthesized initial snapshot
// a late joiner receives on subscribing to an existing task.
func (h *Hub) Deliver(sub *Subscriber, ev a2a.Event) {
	if !sub.deliver(ev) {
		h.drop(sub)
		return
	}
	if ev.IsFinal() {
		h.Unsubscribe(sub)
	}
}

// Publish delivers the event to every subscriber currently registered for
// the task ID. Delivery per subscriber is FIFO; a full buffer drops that
// subscriber without blocking the rest. Subscribers that received a final
// event are deregistered after delivery.
func (h *Hub) Publish(taskID string, ev a2a.Event) {
	t := h.topicFor(taskID, false)
	if t == nil {
		return
	}

	final := ev.IsFinal()

	t.mu.Lock()
	for id, sub := range t.subs {
		if !sub.deliver(ev) {
			delete(t.subs, id)
			sub.close()
			h.logger.Warn("subscriber dropped: event buffer full", "task_id", taskID)
			if h.onDrop != nil {
				h.onDrop(taskID)
			}
			continue
		}
		if final {
			delete(t.subs, id)
			sub.close()
		}
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		h.removeIfEmpty(taskID)
	}
}

// Unsubscribe removes a subscriber and closes its event channel. Removing a
// subscriber that is already gone is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	t := h.topicFor(sub.taskID, false)
	if t == nil {
		sub.close()
		return
	}

	t.mu.Lock()
	if _, ok := t.subs[sub.id]; ok {
		delete(t.subs, sub.id)
	}
	empty := len(t.subs) == 0
	t.mu.Unlock()

	sub.close()
	if empty {
		h.removeIfEmpty(sub.taskID)
	}
}

func (h *Hub) drop(sub *Subscriber) {
	h.Unsubscribe(sub)
	h.logger.Warn("subscriber dropped: event buffer full", "task_id", sub.taskID)
	if h.onDrop != nil {
		h.onDrop(sub.taskID)
	}
}

func (h *Hub) removeIfEmpty(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topics[taskID]
	if t == nil {
		return
	}
	t.mu.Lock()
	empty := len(t.subs) == 0
	t.mu.Unlock()
	if empty {
		delete(h.topics, taskID)
	}
}

// SubscriberCount returns the number of active subscribers for a task ID.
func (h *Hub) SubscriberCount(taskID string) int {
	t := h.topicFor(taskID, false)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Reap removes subscribers for which expired returns true and closes their
// channels. The server uses this to expire subscriptions registered for
// tasks that were never created.
func (h *Hub) Reap(expired func(taskID string, registeredAt time.Time) bool) int {
	h.mu.RLock()
	taskIDs := make([]string, 0, len(h.topics))
	for id := range h.topics {
		taskIDs = append(taskIDs, id)
	}
	h.mu.RUnlock()

	var reaped int
	for _, taskID := range taskIDs {
		t := h.topicFor(taskID, false)
		if t == nil {
			continue
		}
		t.mu.Lock()
		for id, sub := range t.subs {
			if expired(taskID, sub.registeredAt) {
				delete(t.subs, id)
				sub.close()
				reaped++
			}
		}
		empty := len(t.subs) == 0
		t.mu.Unlock()
		if empty {
			h.removeIfEmpty(taskID)
		}
	}

	if reaped > 0 {
		h.logger.Info("reaped idle subscriptions", "count", reaped)
	}
	return reaped
}

// Close drops every subscriber and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[string]*topic)
	h.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for id, sub := range t.subs {
			delete(t.subs, id)
			sub.close()
		}
		t.mu.Unlock()
	}
}
