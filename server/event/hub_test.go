// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"testing"
	"time"

	"github.com/agentwire/a2a"
)

func statusEvent(taskID string, state a2a.TaskState) *a2a.StatusUpdateEvent {
	return a2a.NewStatusUpdateEvent(taskID, "ctx", a2a.TaskStatus{State: state})
}

func collect(t *testing.T, sub *Subscriber, n int) []a2a.Event {
	t.Helper()
	out := make([]a2a.Event, 0, n)
	for len(out) < n {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func assertClosed(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPublishOrdering(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe("task-1")
	states := []a2a.TaskState{a2a.TaskStateSubmitted, a2a.TaskStateWorking, a2a.TaskStateInputRequired}
	for _, s := range states {
		h.Publish("task-1", statusEvent("task-1", s))
	}

	got := collect(t, sub, len(states))
	for i, ev := range got {
		update := ev.(*a2a.StatusUpdateEvent)
		if update.Status.State != states[i] {
			t.Errorf("event %d: state %s, want %s", i, update.Status.State, states[i])
		}
	}
}

func TestSubscribeBeforeTaskExists(t *testing.T) {
	h := NewHub()
	defer h.Close()

	// Subscription registration is independent of task existence.
	sub := h.Subscribe("not-yet-created")
	if h.SubscriberCount("not-yet-created") != 1 {
		t.Fatal("subscriber not registered")
	}

	h.Publish("not-yet-created", statusEvent("not-yet-created", a2a.TaskStateSubmitted))
	got := collect(t, sub, 1)
	if got[0].EventTaskID() != "not-yet-created" {
		t.Errorf("event for wrong task: %s", got[0].EventTaskID())
	}
}

func TestFinalEventEndsSubscription(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe("task-1")
	h.Publish("task-1", statusEvent("task-1", a2a.TaskStateCompleted))

	got := collect(t, sub, 1)
	if !got[0].IsFinal() {
		t.Error("expected final event")
	}
	assertClosed(t, sub)
	if n := h.SubscriberCount("task-1"); n != 0 {
		t.Errorf("subscriber count after final = %d, want 0", n)
	}
}

func TestOverflowDropsSlowSubscriber(t *testing.T) {
	var dropped []string
	h := NewHub(WithBuffer(2), WithDropHandler(func(taskID string) {
		dropped = append(dropped, taskID)
	}))
	defer h.Close()

	slow := h.Subscribe("task-1")
	for i := 0; i < 3; i++ {
		h.Publish("task-1", statusEvent("task-1", a2a.TaskStateWorking))
	}

	// Two buffered events, then the close from the drop.
	collect(t, slow, 2)
	assertClosed(t, slow)

	if len(dropped) != 1 || dropped[0] != "task-1" {
		t.Errorf("drop handler calls = %v, want one for task-1", dropped)
	}
	if n := h.SubscriberCount("task-1"); n != 0 {
		t.Errorf("subscriber count after drop = %d, want 0", n)
	}
}

func TestOverflowSparesKeptUpSubscribers(t *testing.T) {
	h := NewHub(WithBuffer(2))
	defer h.Close()

	slow := h.Subscribe("task-1")
	fast := h.Subscribe("task-1")

	h.Publish("task-1", statusEvent("task-1", a2a.TaskStateSubmitted))
	h.Publish("task-1", statusEvent("task-1", a2a.TaskStateWorking))
	collect(t, fast, 2)

	// Third event overflows slow but lands in fast's drained buffer.
	h.Publish("task-1", statusEvent("task-1", a2a.TaskStateInputRequired))
	got := collect(t, fast, 1)
	if got[0].(*a2a.StatusUpdateEvent).Status.State != a2a.TaskStateInputRequired {
		t.Error("fast subscriber missed the event that overflowed the slow one")
	}

	collect(t, slow, 2)
	assertClosed(t, slow)
	if n := h.SubscriberCount("task-1"); n != 1 {
		t.Errorf("subscriber count = %d, want the fast one only", n)
	}
}

func TestDeliverFinalSnapshot(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe("task-1")
	task := a2a.NewTask("task-1", "")
	task.Status.State = a2a.TaskStateCompleted

	h.Deliver(sub, a2a.NewTaskEvent(task))
	got := collect(t, sub, 1)
	if !got[0].IsFinal() {
		t.Error("terminal snapshot should be final")
	}
	assertClosed(t, sub)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe("task-1")
	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assertClosed(t, sub)

	// Publishing to an empty topic is a no-op.
	h.Publish("task-1", statusEvent("task-1", a2a.TaskStateWorking))
}

func TestSubscribeSurvivesConcurrentTopicRemoval(t *testing.T) {
	h := NewHub()
	defer h.Close()

	// Unsubscribing the last subscriber garbage-collects the topic. A
	// Subscribe racing that removal must still land on the live topic, or
	// its events channel would never see a publish.
	for i := 0; i < 5000; i++ {
		old := h.Subscribe("task-1")

		done := make(chan *Subscriber)
		go func() {
			done <- h.Subscribe("task-1")
		}()
		h.Unsubscribe(old)
		sub := <-done

		if n := h.SubscriberCount("task-1"); n != 1 {
			t.Fatalf("iteration %d: subscriber count = %d, want 1", i, n)
		}
		h.Publish("task-1", statusEvent("task-1", a2a.TaskStateWorking))
		collect(t, sub, 1)
		h.Unsubscribe(sub)
	}
}

func TestReapExpiresOldSubscriptions(t *testing.T) {
	h := NewHub()
	defer h.Close()

	old := h.Subscribe("task-ghost")
	fresh := h.Subscribe("task-live")

	cutoff := time.Now()
	reaped := h.Reap(func(taskID string, registeredAt time.Time) bool {
		return taskID == "task-ghost" && !registeredAt.After(cutoff)
	})

	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}
	assertClosed(t, old)
	if h.SubscriberCount("task-live") != 1 {
		t.Error("live subscription reaped")
	}
	_ = fresh
}

func TestCloseDropsEverything(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("task-1")
	b := h.Subscribe("task-2")

	h.Close()
	assertClosed(t, a)
	assertClosed(t, b)
}
