package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sourcegraph/conc/panics"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeItemDemoted, func(e Event) { called = true })

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var got ItemDemotedEvent
	bus.Subscribe(TypeItemDemoted, func(e Event) {
		got = e.(ItemDemotedEvent)
	})

	cause := errors.New("boom")
	bus.Publish(NewItemDemotedEvent(7, "entity-1", "mob/zombie", "parallel", cause))

	if got.ItemID != "entity-1" || got.Tick != 7 || got.Kind != "mob/zombie" {
		t.Errorf("unexpected event: %+v", got)
	}
	if !errors.Is(got.Err, cause) {
		t.Errorf("Err = %v, want %v", got.Err, cause)
	}
	if got.Timestamp().IsZero() {
		t.Error("Timestamp() should be set")
	}
	if bus.Published() != 1 {
		t.Errorf("Published() = %d, want 1", bus.Published())
	}
}

func TestBus_DeliveryOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "wild") })
	bus.Subscribe(TypeTickCompleted, func(Event) { order = append(order, "a") })
	bus.Subscribe(TypeTickCompleted, func(Event) { order = append(order, "b") })
	bus.Subscribe(TypeBatchDrained, func(Event) { order = append(order, "other") })

	bus.Publish(NewTickCompletedEvent(1, 0, TickCounters{}, 0, 0))

	want := []string{"a", "b", "wild"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	keep := bus.Subscribe(TypeBudgetDeferred, func(Event) { calls++ })
	drop := bus.Subscribe(TypeBudgetDeferred, func(Event) { calls += 100 })

	if !bus.Unsubscribe(drop) {
		t.Fatal("Unsubscribe should find the subscription")
	}
	if bus.Unsubscribe(drop) {
		t.Error("second Unsubscribe should return false")
	}
	if bus.Unsubscribe("sub-missing") {
		t.Error("Unsubscribe of unknown ID should return false")
	}

	bus.Publish(NewBudgetDeferredEvent(1, "mob-1", 1))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	bus.Unsubscribe(keep)
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeItemDemoted, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear, want 0", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	var recovered []string
	bus := NewBus(WithPanicHandler(func(eventType string, r *panics.Recovered) {
		recovered = append(recovered, eventType)
	}))

	reached := false
	bus.Subscribe(TypeConfigReloaded, func(Event) { panic("handler exploded") })
	bus.Subscribe(TypeConfigReloaded, func(Event) { reached = true })

	bus.Publish(NewConfigReloadedEvent("/tmp/config.yaml", nil))

	if !reached {
		t.Error("second handler should run after the first panics")
	}
	if len(recovered) != 1 || recovered[0] != TypeConfigReloaded {
		t.Errorf("recovered = %v", recovered)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var count atomic.Int64
	bus.Subscribe(TypeBatchDrained, func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			for range 50 {
				bus.Publish(NewBatchDrainedEvent(1, 10, 4, 0))
			}
		})
	}
	wg.Wait()

	if count.Load() != 800 {
		t.Errorf("count = %d, want 800", count.Load())
	}
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 25 {
				id := bus.Subscribe(TypePropagationFlushed, func(Event) {})
				bus.Publish(NewPropagationFlushedEvent("0:0", false, 3, 1))
				bus.Unsubscribe(id)
			}
		})
	}
	wg.Wait()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()
	seen := make(map[string]bool)
	for range 500 {
		id := bus.Subscribe(TypeScalingRecommendation, func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription ID %q", id)
		}
		seen[id] = true
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewItemDemotedEvent(1, "a", "", "parallel", nil), TypeItemDemoted},
		{NewBatchDrainedEvent(1, 1, 1, 0), TypeBatchDrained},
		{NewTickCompletedEvent(1, 0, TickCounters{}, 0, 0), TypeTickCompleted},
		{NewPropagationFlushedEvent("r", true, 1, 1), TypePropagationFlushed},
		{NewScalingRecommendationEvent(1, -4, "x"), TypeScalingRecommendation},
		{NewBudgetDeferredEvent(1, "r", 1), TypeBudgetDeferred},
		{NewConfigReloadedEvent("p", nil), TypeConfigReloaded},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
		})
	}
}
