// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/event"
)

// lockStripes is the number of task lock stripes. Mutations on the same task
// always serialize; unrelated tasks rarely contend.
const lockStripes = 64

// Notifier delivers a task update to an external webhook. Implementations
// must not block the caller longer than their own delivery timeout.
type Notifier interface {
	Notify(ctx context.Context, config *a2a.PushNotificationConfig, task *a2a.Task, ev a2a.Event) error
}

// Manager coordinates task persistence with event broadcast. Every mutation
// holds the task's lock across the store write and the hub publish, so the
// event stream observed by any subscriber matches the order of durable
// states.
type Manager struct {
	store       TaskStore
	hub         *event.Hub
	pushConfigs PushConfigStore
	notifier    Notifier
	onCreate    func(taskID string)

	logger *slog.Logger
	tracer trace.Tracer
	locks  [lockStripes]sync.Mutex

	// wg tracks in-flight push notification deliveries for Close.
	wg sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithPushConfigStore attaches a push notification config store. Without
// one, push notification operations report unsupported.
func WithPushConfigStore(store PushConfigStore) ManagerOption {
	return func(m *Manager) { m.pushConfigs = store }
}

// WithNotifier attaches the webhook delivery mechanism for push
// notifications.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithCreateHook registers a callback invoked after each task creation.
func WithCreateHook(fn func(taskID string)) ManagerOption {
	return func(m *Manager) { m.onCreate = fn }
}

// NewManager creates a Manager on the given store and hub.
func NewManager(store TaskStore, hub *event.Hub, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	m := &Manager{
		store:  store,
		hub:    hub,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/agentwire/a2a/server/task"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PushConfigs returns the attached push config store, or nil when the
// deployment carries none.
func (m *Manager) PushConfigs() PushConfigStore { return m.pushConfigs }

func (m *Manager) lockFor(taskID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return &m.locks[h.Sum32()%lockStripes]
}

// Get retrieves a task by ID. historyLength truncates the returned history
// to the most recent n messages; nil returns the full history.
func (m *Manager) Get(ctx context.Context, taskID string, historyLength *int) (*a2a.Task, error) {
	ctx, span := m.tracer.Start(ctx, "task.get",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return task.TrimHistory(historyLength), nil
}

// List returns a page of tasks matching the query.
func (m *Manager) List(ctx context.Context, query ListQuery) ([]*a2a.Task, error) {
	ctx, span := m.tracer.Start(ctx, "task.list")
	defer span.End()
	return m.store.List(ctx, query)
}

// Send routes a message to a task, creating the task if it does not exist.
// Appending to a task in a terminal state fails with
// [a2a.TaskNotUpdatableError]. A submitted or input-required task moves to
// working: a created task is announced with its submitted snapshot and then
// the working status update, so early subscribers see both.
func (m *Manager) Send(ctx context.Context, params *a2a.SendParams) (*a2a.Task, error) {
	if params == nil || params.Message == nil {
		return nil, fmt.Errorf("send params must carry a message")
	}
	if err := params.Message.Validate(); err != nil {
		return nil, err
	}

	if params.ID == "" {
		params.ID = uuid.NewString()
	}

	ctx, span := m.tracer.Start(ctx, "task.send",
		trace.WithAttributes(attribute.String("a2a.task_id", params.ID)))
	defer span.End()

	mu := m.lockFor(params.ID)
	mu.Lock()
	defer mu.Unlock()

	task, created, err := m.loadOrCreate(ctx, params.ID, params.ContextID, params.Metadata)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, a2a.TaskNotUpdatableError{TaskID: task.ID, State: task.Status.State}
	}

	task.History = append(task.History, params.Message)
	now := time.Now().UTC()
	task.UpdatedAt = now

	if created {
		// A fresh task announces itself with a snapshot so racing
		// subscribers observe its birth before the working transition.
		if err := m.store.Save(ctx, task); err != nil {
			return nil, err
		}
		m.publish(ctx, task, a2a.NewTaskEvent(task))
		if m.onCreate != nil {
			m.onCreate(task.ID)
		}
	}

	// A routed message starts or resumes work.
	advance := task.Status.State == a2a.TaskStateSubmitted ||
		task.Status.State == a2a.TaskStateInputRequired
	if advance {
		task.Status = a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: now}
		task.UpdatedAt = now
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}
	if advance {
		m.publish(ctx, task, a2a.NewStatusUpdateEvent(task.ID, task.ContextID, task.Status))
	}

	m.logger.Info("message routed to task",
		"task_id", task.ID, "state", task.Status.State, "created", created)
	return task, nil
}

// ApplyStatus transitions a task to a new status. The transition is checked
// against the lifecycle state machine; invalid moves fail with
// [a2a.InvalidTransitionError] and leave the task unchanged. An optional
// message is appended to the history in the same write.
func (m *Manager) ApplyStatus(ctx context.Context, taskID string, status a2a.TaskStatus, message *a2a.Message) (*a2a.Task, error) {
	if err := status.Validate(); err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "task.apply_status",
		trace.WithAttributes(
			attribute.String("a2a.task_id", taskID),
			attribute.String("a2a.to_state", string(status.State)),
		))
	defer span.End()

	mu := m.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.State.CanTransition(status.State) {
		return nil, a2a.InvalidTransitionError{
			TaskID: taskID,
			From:   task.Status.State,
			To:     status.State,
		}
	}

	now := time.Now().UTC()
	if status.Timestamp.IsZero() {
		status.Timestamp = now
	}
	task.Status = status
	task.UpdatedAt = now
	if message != nil {
		if err := message.Validate(); err != nil {
			return nil, err
		}
		task.History = append(task.History, message)
	}

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}
	m.publish(ctx, task, a2a.NewStatusUpdateEvent(task.ID, task.ContextID, task.Status))

	m.logger.Info("task status applied", "task_id", taskID, "state", status.State)
	return task, nil
}

// AppendArtifact appends an artifact to a task, or extends the existing
// artifact with the same ID when appendChunk is set. Appending to a terminal
// task fails with [a2a.TaskNotUpdatableError].
func (m *Manager) AppendArtifact(ctx context.Context, taskID string, artifact *a2a.Artifact, appendChunk, lastChunk bool) (*a2a.Task, error) {
	if artifact == nil {
		return nil, fmt.Errorf("artifact cannot be nil")
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "task.append_artifact",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	mu := m.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, a2a.TaskNotUpdatableError{TaskID: taskID, State: task.Status.State}
	}

	mergeArtifact(task, artifact, appendChunk)
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}
	m.publish(ctx, task, a2a.NewArtifactUpdateEvent(task.ID, task.ContextID, artifact, appendChunk, lastChunk))
	return task, nil
}

// mergeArtifact folds an artifact update into the task. Without appendChunk
// an artifact with a matching ID is replaced, otherwise appended; with
// appendChunk the chunk's parts extend the matching artifact.
func mergeArtifact(task *a2a.Task, artifact *a2a.Artifact, appendChunk bool) {
	for i, existing := range task.Artifacts {
		if existing.ArtifactID != artifact.ArtifactID {
			continue
		}
		if appendChunk {
			existing.Parts = append(existing.Parts, artifact.Parts...)
		} else {
			task.Artifacts[i] = artifact
		}
		return
	}
	task.Artifacts = append(task.Artifacts, artifact)
}

// Cancel moves a task to the canceled state. Canceling a task already in a
// terminal state fails with [a2a.TaskNotCancelableError]; the attempt does
// not modify the task.
func (m *Manager) Cancel(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := m.tracer.Start(ctx, "task.cancel",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	mu := m.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.State.Terminal() {
		return nil, a2a.TaskNotCancelableError{TaskID: taskID, State: task.Status.State}
	}

	now := time.Now().UTC()
	task.Status = a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: now}
	task.UpdatedAt = now

	if err := m.store.Save(ctx, task); err != nil {
		return nil, err
	}
	m.publish(ctx, task, a2a.NewStatusUpdateEvent(task.ID, task.ContextID, task.Status))

	m.logger.Info("task canceled", "task_id", taskID)
	return task, nil
}

// Subscribe registers a subscriber for the task's update events. The task
// does not have to exist: registration for an unknown ID succeeds and the
// returned snapshot is nil; the subscription starts delivering as soon as a
// task with that ID is created. For an existing task the current snapshot is
// returned and also delivered as the subscription's first event, atomically
// with registration, so no update falls between snapshot and stream.
func (m *Manager) Subscribe(ctx context.Context, taskID string) (*event.Subscriber, *a2a.Task, error) {
	ctx, span := m.tracer.Start(ctx, "task.subscribe",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	mu := m.lockFor(taskID)
	mu.Lock()
	defer mu.Unlock()

	sub := m.hub.Subscribe(taskID)

	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		var notFound a2a.TaskNotFoundError
		if errors.As(err, &notFound) {
			return sub, nil, nil
		}
		m.hub.Unsubscribe(sub)
		return nil, nil, err
	}

	m.hub.Deliver(sub, a2a.NewTaskEvent(task))
	return sub, task, nil
}

// Unsubscribe removes a subscriber.
func (m *Manager) Unsubscribe(sub *event.Subscriber) {
	m.hub.Unsubscribe(sub)
}

// ReapIdle expires subscriptions older than ttl whose task still does not
// exist. Subscriptions to existing tasks are never reaped; those end with
// the task's final event or the subscriber's disconnect.
func (m *Manager) ReapIdle(ctx context.Context, ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	return m.hub.Reap(func(taskID string, registeredAt time.Time) bool {
		if registeredAt.After(cutoff) {
			return false
		}
		_, err := m.store.Get(ctx, taskID)
		var notFound a2a.TaskNotFoundError
		return errors.As(err, &notFound)
	})
}

// loadOrCreate fetches the task or creates it in the submitted state. The
// caller must hold the task's lock.
func (m *Manager) loadOrCreate(ctx context.Context, taskID, contextID string, metadata map[string]any) (*a2a.Task, bool, error) {
	task, err := m.store.Get(ctx, taskID)
	if err == nil {
		return task, false, nil
	}
	var notFound a2a.TaskNotFoundError
	if !errors.As(err, &notFound) {
		return nil, false, err
	}

	task = a2a.NewTask(taskID, contextID)
	task.Metadata = metadata
	return task, true, nil
}

// publish fans the event out to subscribers and, when push notifications are
// configured, dispatches webhook deliveries in the background.
func (m *Manager) publish(ctx context.Context, task *a2a.Task, ev a2a.Event) {
	m.hub.Publish(task.ID, ev)

	if m.notifier == nil || m.pushConfigs == nil {
		return
	}
	configs, err := m.pushConfigs.List(ctx, task.ID)
	if err != nil {
		m.logger.Error("list push configs failed", "task_id", task.ID, "error", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	snapshot := *task
	for _, config := range configs {
		m.wg.Add(1)
		go func(config *a2a.PushNotificationConfig) {
			defer m.wg.Done()
			nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := m.notifier.Notify(nctx, config, &snapshot, ev); err != nil {
				m.logger.Warn("push notification delivery failed",
					"task_id", task.ID, "config_id", config.ID, "url", config.URL, "error", err)
			}
		}(config)
	}
}

// Close waits for in-flight push notification deliveries and shuts the hub
// down. The stores are closed by their owner.
func (m *Manager) Close() {
	m.wg.Wait()
	m.hub.Close()
}
