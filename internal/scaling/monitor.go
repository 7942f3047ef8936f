package scaling

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/ticksched/internal/event"
)

// DefaultInterval is how often a started Monitor evaluates the controller.
const DefaultInterval = 5 * time.Second

// Monitor feeds batch.drained events from the bus into a Controller and, once
// started, publishes non-zero recommendations at a fixed interval.
type Monitor struct {
	mu       sync.Mutex
	bus      *event.Bus
	ctrl     *Controller
	interval time.Duration
	handlers []func(Recommendation)
	subID    string
	cancel   context.CancelFunc

	// currentWorkers is maintained by the caller through SetCurrentWorkers so
	// evaluations respect the policy's worker bounds.
	currentWorkers int
}

// NewMonitor creates a Monitor. A non-positive interval uses DefaultInterval.
func NewMonitor(bus *event.Bus, ctrl *Controller, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		bus:      bus,
		ctrl:     ctrl,
		interval: interval,
	}
}

// OnRecommendation registers a callback invoked for each non-zero
// recommendation. Multiple handlers may be registered.
func (m *Monitor) OnRecommendation(handler func(Recommendation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// SetCurrentWorkers updates the pool size known to the monitor.
func (m *Monitor) SetCurrentWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentWorkers = n
}

// Attach subscribes the controller to batch.drained events, one sample per
// drained tick batch with the batch's total processing time. It is called by
// Start and may be called earlier so samples are recorded before the
// publishing loop runs. Calling it twice is a no-op.
func (m *Monitor) Attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subID != "" {
		return
	}
	m.subID = m.bus.Subscribe(event.TypeBatchDrained, func(e event.Event) {
		de, ok := e.(event.BatchDrainedEvent)
		if !ok {
			return
		}
		m.ctrl.RecordProcessing(de.QueueDepth, de.Processing)
	})
}

// Detach removes the batch.drained subscription.
func (m *Monitor) Detach() {
	m.mu.Lock()
	subID := m.subID
	m.subID = ""
	m.mu.Unlock()

	if subID != "" {
		m.bus.Unsubscribe(subID)
	}
}

// Evaluate computes the current recommendation and, when it is non-zero,
// publishes it and invokes the registered handlers.
func (m *Monitor) Evaluate() Recommendation {
	m.mu.Lock()
	workers := m.currentWorkers
	handlers := make([]func(Recommendation), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	rec := m.ctrl.Recommendation(workers)
	if rec.IsZero() {
		return rec
	}
	m.bus.Publish(event.NewScalingRecommendationEvent(rec.ThreadDelta, rec.BatchDelta, rec.Reason))
	for _, h := range handlers {
		h(rec)
	}
	return rec
}

// Start attaches to the bus and evaluates every interval. It blocks until the
// context is cancelled or Stop is called, then detaches.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.Attach()
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer m.Detach()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// Stop cancels a running Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
