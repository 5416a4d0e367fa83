// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"testing"
	"time"

	"github.com/agentwire/a2a"
)

func recvEvent(t *testing.T, sub *Subscription) a2a.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("stream closed early (err: %v)", sub.Err())
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return nil
	}
}

func assertStreamEnds(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected stream end, got event")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestSubscribeExistingTaskStreamsToCompletion(t *testing.T) {
	ctx := context.Background()
	c, manager := newTestServer(t, false)

	if _, err := c.SendMessage(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	sub, err := c.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// First event is the snapshot from the handshake.
	first := recvEvent(t, sub)
	snap, ok := first.(*a2a.TaskEvent)
	if !ok {
		t.Fatalf("first event = %T, want *TaskEvent", first)
	}
	if snap.Task.ID != "task-1" {
		t.Errorf("snapshot for %s", snap.Task.ID)
	}

	// Server-side progress arrives in order.
	if _, err := manager.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateWorking}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.AppendArtifact(ctx, "task-1",
		&a2a.Artifact{ArtifactID: "a1", Parts: []a2a.Part{a2a.TextPart("result")}}, false, true); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.ApplyStatus(ctx, "task-1", a2a.TaskStatus{State: a2a.TaskStateCompleted}, nil); err != nil {
		t.Fatal(err)
	}

	wantKinds := []string{a2a.EventKindStatusUpdate, a2a.EventKindArtifactUpdate, a2a.EventKindStatusUpdate}
	var last a2a.Event
	for i, want := range wantKinds {
		ev := recvEvent(t, sub)
		if ev.Kind() != want {
			t.Errorf("event %d: kind %s, want %s", i, ev.Kind(), want)
		}
		last = ev
	}
	if !last.IsFinal() {
		t.Error("final status update should end the stream")
	}
	assertStreamEnds(t, sub)
	if err := sub.Err(); err != nil {
		t.Errorf("stream ended with error: %v", err)
	}
}

func TestSubscribeBeforeCreateOverStream(t *testing.T) {
	ctx := context.Background()
	c, manager := newTestServer(t, false)

	// Subscribing to a task that does not exist is accepted, not rejected.
	sub, err := c.Subscribe(ctx, "task-race")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Give the registration a moment, then create the task server-side.
	time.Sleep(50 * time.Millisecond)
	if _, err := manager.Send(ctx, &a2a.SendParams{ID: "task-race", Message: userMessage("born")}); err != nil {
		t.Fatal(err)
	}

	ev := recvEvent(t, sub)
	snap, ok := ev.(*a2a.TaskEvent)
	if !ok {
		t.Fatalf("first event = %T, want the creation snapshot", ev)
	}
	if snap.Task.ID != "task-race" || snap.Task.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("snapshot = %s in %s", snap.Task.ID, snap.Task.Status.State)
	}

	// The routed message's working transition follows the snapshot.
	ev = recvEvent(t, sub)
	update, ok := ev.(*a2a.StatusUpdateEvent)
	if !ok {
		t.Fatalf("second event = %T, want *StatusUpdateEvent", ev)
	}
	if update.Status.State != a2a.TaskStateWorking {
		t.Errorf("update state = %s, want working", update.Status.State)
	}
}

func TestSendSubscribe(t *testing.T) {
	ctx := context.Background()
	c, manager := newTestServer(t, false)

	sub, err := c.SendSubscribe(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("go")})
	if err != nil {
		t.Fatalf("sendSubscribe: %v", err)
	}
	defer sub.Close()

	first := recvEvent(t, sub)
	snap, ok := first.(*a2a.TaskEvent)
	if !ok {
		t.Fatalf("first event = %T, want *TaskEvent", first)
	}
	if len(snap.Task.History) != 1 {
		t.Errorf("snapshot history = %d, want the routed message", len(snap.Task.History))
	}

	if _, err := manager.Cancel(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}
	ev := recvEvent(t, sub)
	update, ok := ev.(*a2a.StatusUpdateEvent)
	if !ok {
		t.Fatalf("event = %T, want *StatusUpdateEvent", ev)
	}
	if update.Status.State != a2a.TaskStateCanceled || !update.IsFinal() {
		t.Errorf("update = %s final=%v", update.Status.State, update.IsFinal())
	}
	assertStreamEnds(t, sub)
}

func TestSubscribeTerminalTaskEndsImmediately(t *testing.T) {
	ctx := context.Background()
	c, manager := newTestServer(t, false)

	if _, err := manager.Send(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Cancel(ctx, "task-1"); err != nil {
		t.Fatal(err)
	}

	sub, err := c.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev := recvEvent(t, sub)
	if !ev.IsFinal() {
		t.Error("terminal snapshot should be final")
	}
	assertStreamEnds(t, sub)
}

func TestSubscriptionCloseStopsStream(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestServer(t, false)

	if _, err := c.SendMessage(ctx, &a2a.SendParams{ID: "task-1", Message: userMessage("start")}); err != nil {
		t.Fatal(err)
	}

	sub, err := c.Subscribe(ctx, "task-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	recvEvent(t, sub)
	sub.Close()
	assertStreamEnds(t, sub)
}

func TestReceiveTimeoutConfigurable(t *testing.T) {
	c, err := New("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	if c.receiveTimeout != DefaultReceiveTimeout {
		t.Errorf("default receive timeout = %v, want %v", c.receiveTimeout, DefaultReceiveTimeout)
	}

	c, err = New("http://localhost:8080", WithReceiveTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if c.receiveTimeout != 5*time.Second {
		t.Errorf("receive timeout = %v, want 5s", c.receiveTimeout)
	}

	// A zero or negative override keeps the default instead of disabling
	// read deadlines entirely.
	c, err = New("http://localhost:8080", WithReceiveTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	if c.receiveTimeout != DefaultReceiveTimeout {
		t.Errorf("zero override left receive timeout = %v, want %v", c.receiveTimeout, DefaultReceiveTimeout)
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
	}

	waits := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, want := range waits {
		if got := p.delay(attempt); got != want {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}

	if p.exhausted(2) {
		t.Error("attempt 2 of 3 should not be exhausted")
	}
	if !p.exhausted(3) {
		t.Error("attempt 3 of 3 should be exhausted")
	}
}
