// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/event"
)

func newTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *event.Hub) {
	t.Helper()
	hub := event.NewHub()
	m, err := NewManager(NewInMemoryTaskStore(), hub, opts...)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)
	return m, hub
}

func userMessage(text string) *a2a.Message {
	return &a2a.Message{Role: a2a.RoleUser, Parts: []a2a.Part{a2a.TextPart(text)}}
}

func recvEvent(t *testing.T, sub *event.Subscriber) a2a.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestSendCreatesTask(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	task, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("do the thing")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	// A routed message starts work: the task is created submitted and
	// immediately moved to working.
	if task.Status.State != a2a.TaskStateWorking {
		t.Errorf("state = %s, want working", task.Status.State)
	}
	if len(task.History) != 1 {
		t.Errorf("history length = %d, want 1", len(task.History))
	}
}

func TestCreateHookFiresOncePerTask(t *testing.T) {
	ctx := context.Background()
	var created []string
	m, _ := newTestManager(t, WithCreateHook(func(taskID string) {
		created = append(created, taskID)
	}))

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("one")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("two")}); err != nil {
		t.Fatal(err)
	}

	if len(created) != 1 || created[0] != "task-1" {
		t.Errorf("create hook calls = %v, want one for task-1", created)
	}
}

func TestSendMintsID(t *testing.T) {
	m, _ := newTestManager(t)
	task, err := m.Send(context.Background(), &a2a.SendParams{Message: userMessage("hi")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if task.ID == "" {
		t.Error("expected a minted task ID")
	}
}

func TestSendResumesWaitingTask(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateInputRequired}, nil); err != nil {
		t.Fatal(err)
	}

	task, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("here is the input")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if task.Status.State != a2a.TaskStateWorking {
		t.Errorf("state = %s, want working after input", task.Status.State)
	}
	if len(task.History) != 2 {
		t.Errorf("history length = %d, want 2", len(task.History))
	}
}

func TestSendToTerminalTaskFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Cancel(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}

	_, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("too late")})
	var notUpdatable a2a.TaskNotUpdatableError
	if !errors.As(err, &notUpdatable) {
		t.Fatalf("expected TaskNotUpdatableError, got %v", err)
	}

	// The rejected append left the task untouched.
	task, err := m.Get(ctx, "task-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(task.History) != 1 {
		t.Errorf("history length = %d, want 1", len(task.History))
	}
}

func TestApplyStatusRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	// working cannot fall back to submitted.
	_, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateSubmitted}, nil)
	var invalid a2a.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != a2a.TaskStateWorking || invalid.To != a2a.TaskStateSubmitted {
		t.Errorf("error details = %s -> %s", invalid.From, invalid.To)
	}

	task, err := m.Get(ctx, "task-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != a2a.TaskStateWorking {
		t.Errorf("rejected transition mutated the task: state %s", task.Status.State)
	}
}

func TestCancelTerminalTaskFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateCompleted}, nil); err != nil {
		t.Fatal(err)
	}

	_, err := m.Cancel(ctx, "task-1")
	var notCancelable a2a.TaskNotCancelableError
	if !errors.As(err, &notCancelable) {
		t.Fatalf("expected TaskNotCancelableError, got %v", err)
	}
	if notCancelable.State != a2a.TaskStateCompleted {
		t.Errorf("error state = %s, want completed", notCancelable.State)
	}

	// The failed cancel did not overwrite the completed status.
	task, err := m.Get(ctx, "task-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
}

func TestSubscribeBeforeCreate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	// Subscribing to a task that does not exist succeeds with no snapshot.
	sub, snapshot, err := m.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if snapshot != nil {
		t.Fatal("expected nil snapshot for unknown task")
	}

	// Creation reaches the early subscriber.
	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	ev := recvEvent(t, sub)
	snap, ok := ev.(*a2a.TaskEvent)
	if !ok {
		t.Fatalf("first event = %T, want *TaskEvent", ev)
	}
	if snap.Task.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("snapshot state = %s, want submitted", snap.Task.Status.State)
	}

	// The birth snapshot is followed by the working transition the routed
	// message triggers.
	ev = recvEvent(t, sub)
	update, ok := ev.(*a2a.StatusUpdateEvent)
	if !ok {
		t.Fatalf("second event = %T, want *StatusUpdateEvent", ev)
	}
	if update.Status.State != a2a.TaskStateWorking {
		t.Errorf("update state = %s, want working", update.Status.State)
	}
	if update.IsFinal() {
		t.Error("working update should not be final")
	}
}

func TestSubscribeExistingTaskGetsSnapshotFirst(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	sub, snapshot, err := m.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if snapshot == nil {
		t.Fatal("expected a snapshot for an existing task")
	}

	// The snapshot is also the first channel event, then updates follow.
	first := recvEvent(t, sub)
	if _, ok := first.(*a2a.TaskEvent); !ok {
		t.Fatalf("first event = %T, want *TaskEvent", first)
	}

	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	second := recvEvent(t, sub)
	update, ok := second.(*a2a.StatusUpdateEvent)
	if !ok {
		t.Fatalf("second event = %T, want *StatusUpdateEvent", second)
	}
	if update.Status.State != a2a.TaskStateWorking {
		t.Errorf("update state = %s, want working", update.Status.State)
	}
}

func TestSubscribeTerminalTaskEndsAfterSnapshot(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Cancel(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}

	sub, snapshot, err := m.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if snapshot == nil || snapshot.Status.State != a2a.TaskStateCanceled {
		t.Fatal("expected the canceled snapshot")
	}

	ev := recvEvent(t, sub)
	if !ev.IsFinal() {
		t.Error("terminal snapshot should be final")
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed channel after final snapshot")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after final snapshot")
	}
}

func TestStatusAndArtifactEventOrdering(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	sub, _, err := m.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	recvEvent(t, sub) // snapshot

	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	artifact := &a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.TextPart("result")}}
	if _, err := m.AppendArtifact(ctx, "task-1", artifact, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateCompleted}, nil); err != nil {
		t.Fatal(err)
	}

	wantKinds := []string{a2a.EventKindStatusUpdate, a2a.EventKindArtifactUpdate, a2a.EventKindStatusUpdate}
	for i, want := range wantKinds {
		ev := recvEvent(t, sub)
		if ev.Kind() != want {
			t.Errorf("event %d: kind %s, want %s", i, ev.Kind(), want)
		}
		if i == len(wantKinds)-1 && !ev.IsFinal() {
			t.Error("last event should be final")
		}
	}
}

func TestAppendArtifactChunks(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	first := &a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.TextPart("hello ")}}
	if _, err := m.AppendArtifact(ctx, "task-1", first, false, false); err != nil {
		t.Fatal(err)
	}
	chunk := &a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.TextPart("world")}}
	task, err := m.AppendArtifact(ctx, "task-1", chunk, true, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(task.Artifacts) != 1 {
		t.Fatalf("artifact count = %d, want 1", len(task.Artifacts))
	}
	if len(task.Artifacts[0].Parts) != 2 {
		t.Errorf("parts = %d, want the chunk appended", len(task.Artifacts[0].Parts))
	}
}

func TestAppendArtifactTerminalTaskFails(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Cancel(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}

	artifact := &a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.TextPart("late")}}
	_, err := m.AppendArtifact(ctx, "task-1", artifact, false, false)
	var notUpdatable a2a.TaskNotUpdatableError
	if !errors.As(err, &notUpdatable) {
		t.Fatalf("expected TaskNotUpdatableError, got %v", err)
	}
}

func TestGetTrimsHistory(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("one")}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, userMessage("two")); err != nil {
		t.Fatal(err)
	}

	one := 1
	task, err := m.Get(ctx, "task-1", &one)
	if err != nil {
		t.Fatal(err)
	}
	if len(task.History) != 1 || task.History[0].Text() != "two" {
		t.Errorf("trimmed history = %v, want just the latest message", len(task.History))
	}
}

func TestReapIdleOnlyExpiresGhosts(t *testing.T) {
	ctx := context.Background()
	m, hub := newTestManager(t)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-real", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	realSub, _, err := m.Subscribe(ctx, "task-real")
	if err != nil {
		t.Fatal(err)
	}
	recvEvent(t, realSub)

	if _, _, err := m.Subscribe(ctx, "task-ghost"); err != nil {
		t.Fatal(err)
	}

	// TTL zero: everything old enough is a candidate, but only the ghost's
	// task is missing from the store.
	reaped := m.ReapIdle(ctx, 0)
	if reaped != 1 {
		t.Errorf("reaped = %d, want 1", reaped)
	}
	if hub.SubscriberCount("task-real") != 1 {
		t.Error("subscription for existing task was reaped")
	}
	if hub.SubscriberCount("task-ghost") != 0 {
		t.Error("ghost subscription survived")
	}
}

func TestDroppedSubscriberStillReadsConsistentState(t *testing.T) {
	ctx := context.Background()
	hub := event.NewHub(event.WithBuffer(1))
	m, err := NewManager(NewInMemoryTaskStore(), hub)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)

	if _, err := m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	sub, _, err := m.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}

	// The snapshot fills the one-slot buffer; the next two updates overflow
	// and drop the subscriber.
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateCompleted}, nil); err != nil {
		t.Fatal(err)
	}

	recvEvent(t, sub)
	select {
	case _, ok := <-sub.Events():
		if ok {
			// One buffered update may have squeezed in before the drop.
			if _, stillOpen := <-sub.Events(); stillOpen {
				t.Fatal("dropped subscriber channel never closed")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("dropped subscriber channel never closed")
	}

	// Missed events are recoverable: the durable record is intact.
	task, err := m.Get(ctx, "task-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %s, want completed", task.Status.State)
	}
}

func TestConcurrentSendsSerializePerTask(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("ping")})
		}()
	}
	wg.Wait()

	task, err := m.Get(ctx, "task-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(task.History) != 8 {
		t.Errorf("history length = %d, want 8 (no lost appends)", len(task.History))
	}
}
