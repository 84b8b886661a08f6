package comms

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestInMemoryBus_Subscribe_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received int32
	unsub := bus.Subscribe(string(TaskUpdated), func(_ context.Context, _ *Event) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	ev := &Event{Type: TaskUpdated, TaskID: 7}
	if err := bus.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received = %d, want 1", received)
	}
	if ev.ID == "" {
		t.Error("expected Publish to assign an event ID")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected Publish to stamp the event")
	}

	unsub()
	if err := bus.Publish(ctx, &Event{Type: TaskUpdated, TaskID: 7}); err != nil {
		t.Fatalf("Publish after unsub: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received after unsub = %d, want 1", received)
	}
}

func TestInMemoryBus_TopicRouting(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var created, all int32
	bus.Subscribe(string(TaskCreated), func(_ context.Context, _ *Event) error {
		atomic.AddInt32(&created, 1)
		return nil
	})
	bus.Subscribe(AllEvents, func(_ context.Context, _ *Event) error {
		atomic.AddInt32(&all, 1)
		return nil
	})

	for _, typ := range []EventType{TaskCreated, TaskUpdated, TaskDeleted} {
		if err := bus.Publish(ctx, &Event{Type: typ, TaskID: 1}); err != nil {
			t.Fatalf("Publish %s: %v", typ, err)
		}
	}
	if created != 1 {
		t.Errorf("created handler calls = %d, want 1", created)
	}
	if all != 3 {
		t.Errorf("wildcard handler calls = %d, want 3", all)
	}
}

func TestInMemoryBus_HandlerError(t *testing.T) {
	bus := NewInMemoryBus()
	bus.Subscribe(AllEvents, func(_ context.Context, _ *Event) error {
		return errors.New("boom")
	})
	if err := bus.Publish(context.Background(), &Event{Type: TaskDeleted}); err == nil {
		t.Fatal("expected handler error to surface")
	}
}

func TestInMemoryBus_History(t *testing.T) {
	bus := NewInMemoryBus()
	bus.maxHist = 3
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_ = bus.Publish(ctx, &Event{Type: TaskUpdated, TaskID: i})
	}

	all := bus.History(0)
	if len(all) != 3 {
		t.Fatalf("History(0) len = %d, want 3", len(all))
	}
	if all[0].TaskID != 3 || all[2].TaskID != 5 {
		t.Errorf("History order = [%d..%d], want [3..5]", all[0].TaskID, all[2].TaskID)
	}

	last := bus.History(2)
	if len(last) != 2 || last[0].TaskID != 4 {
		t.Errorf("History(2) = %v, want tasks 4,5", last)
	}
}
