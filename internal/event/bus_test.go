package event

import (
	"log/slog"
	"os"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)

	var received []Event
	bus.Subscribe(BatchMatched, func(e Event) {
		received = append(received, e)
	})
	bus.Start()

	bus.Publish(Event{
		Type: BatchMatched,
		Data: map[string]any{"entities": 42, "kind": "tag"},
	})
	bus.Stop()

	if len(received) != 1 {
		t.Fatalf("got %d events, want 1", len(received))
	}
	if received[0].Data["entities"] != 42 {
		t.Errorf("data[entities] = %v, want 42", received[0].Data["entities"])
	}
	if received[0].String("kind") != "tag" || received[0].String("entities") != "" {
		t.Errorf("String accessor: kind=%q entities=%q", received[0].String("kind"), received[0].String("entities"))
	}
	if received[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	seen := map[Type]int{}
	bus.SubscribeAll(func(e Event) { seen[e.Type]++ })
	bus.Start()

	for _, typ := range AllTypes() {
		bus.Publish(Event{Type: typ})
	}
	bus.Stop()

	for _, typ := range AllTypes() {
		if seen[typ] != 1 {
			t.Errorf("%s delivered %d times, want 1", typ, seen[typ])
		}
	}
}

func TestDeliveryOrder(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, e.String("id")) })
	bus.Start()

	for _, id := range []string{"a", "b", "c", "d"} {
		bus.Publish(Event{Type: MatchApplied, Data: map[string]any{"id": id}})
	}
	bus.Stop()

	if got := len(order); got != 4 || order[0] != "a" || order[3] != "d" {
		t.Errorf("order = %v, want publish order", order)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus(testLogger(), 16)

	var mu sync.Mutex
	count := 0
	for range 3 {
		bus.Subscribe(AutoApplied, func(_ Event) {
			mu.Lock()
			defer mu.Unlock()
			count++
		})
	}
	bus.Start()

	bus.Publish(Event{Type: AutoApplied})
	bus.Stop()

	if count != 3 {
		t.Errorf("got %d handler calls, want 3", count)
	}
}

func TestBufferFull(t *testing.T) {
	bus := NewBus(testLogger(), 2)
	delivered := 0
	bus.Subscribe(BatchMatched, func(_ Event) { delivered++ })

	// Not started: the third event has nowhere to go.
	for range 3 {
		bus.Publish(Event{Type: BatchMatched})
	}
	bus.Start()
	bus.Stop()

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
}

func TestHandlerPanicRecovery(t *testing.T) {
	bus := NewBus(testLogger(), 16)

	secondCalled := false
	bus.Subscribe(MatchApplied, func(_ Event) {
		panic("test panic")
	})
	bus.Subscribe(MatchApplied, func(_ Event) {
		secondCalled = true
	})
	bus.Start()

	bus.Publish(Event{Type: MatchApplied})
	bus.Stop()

	if !secondCalled {
		t.Error("second handler should still be called after first panics")
	}
}

func TestStopWithoutStart(t *testing.T) {
	bus := NewBus(testLogger(), 4)
	bus.Publish(Event{Type: MatchSkipped})
	// Must not block.
	bus.Stop()
	bus.Stop()
}

func TestStartTwice(t *testing.T) {
	bus := NewBus(testLogger(), 4)
	count := 0
	bus.Subscribe(MatchSkipped, func(_ Event) { count++ })
	bus.Start()
	bus.Start()
	bus.Publish(Event{Type: MatchSkipped})
	bus.Stop()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestPublishNilBus(t *testing.T) {
	var bus *Bus
	// Should not panic
	bus.Publish(Event{Type: MatchSkipped})
}
