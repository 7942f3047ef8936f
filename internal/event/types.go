package event

import "time"

// Event is the interface that all events implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "item.demoted".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeItemDemoted           = "item.demoted"
	TypeBatchDrained          = "batch.drained"
	TypeTickCompleted         = "tick.completed"
	TypePropagationFlushed    = "propagation.flushed"
	TypeScalingRecommendation = "scaling.recommendation"
	TypeBudgetDeferred        = "budget.deferred"
	TypeConfigReloaded        = "config.reloaded"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Dispatch Events
// -----------------------------------------------------------------------------

// ItemDemotedEvent is emitted when a work item fails while running off the
// tick goroutine and is added to the failure registry.
type ItemDemotedEvent struct {
	baseEvent
	Tick   uint64
	ItemID string
	Kind   string
	Mode   string // "parallel" or "caller_runs"
	Err    error
}

// NewItemDemotedEvent creates an ItemDemotedEvent.
func NewItemDemotedEvent(tick uint64, itemID, kind, mode string, err error) ItemDemotedEvent {
	return ItemDemotedEvent{
		baseEvent: newBaseEvent(TypeItemDemoted),
		Tick:      tick,
		ItemID:    itemID,
		Kind:      kind,
		Mode:      mode,
		Err:       err,
	}
}

// BatchDrainedEvent is emitted when the drain barrier for a tick completes.
// QueueDepth is the largest number of units in flight during the tick and
// Processing is the wall time the barrier waited.
type BatchDrainedEvent struct {
	baseEvent
	Tick       uint64
	Units      int
	QueueDepth int
	Processing time.Duration
}

// NewBatchDrainedEvent creates a BatchDrainedEvent.
func NewBatchDrainedEvent(tick uint64, units, queueDepth int, processing time.Duration) BatchDrainedEvent {
	return BatchDrainedEvent{
		baseEvent:  newBaseEvent(TypeBatchDrained),
		Tick:       tick,
		Units:      units,
		QueueDepth: queueDepth,
		Processing: processing,
	}
}

// -----------------------------------------------------------------------------
// Tick Events
// -----------------------------------------------------------------------------

// TickCompletedEvent is emitted at the end of OnTickEnd.
type TickCompletedEvent struct {
	baseEvent
	Tick       uint64
	Duration   time.Duration
	Serial     int
	Parallel   int
	CallerRuns int
	Failed     int
	Forwarded  int
	Deferred   int
	MSPT       float64
	TPS        float64
}

// TickCounters carries the per-tick counters for NewTickCompletedEvent.
type TickCounters struct {
	Serial     int
	Parallel   int
	CallerRuns int
	Failed     int
	Forwarded  int
	Deferred   int
}

// NewTickCompletedEvent creates a TickCompletedEvent.
func NewTickCompletedEvent(tick uint64, d time.Duration, c TickCounters, mspt, tps float64) TickCompletedEvent {
	return TickCompletedEvent{
		baseEvent:  newBaseEvent(TypeTickCompleted),
		Tick:       tick,
		Duration:   d,
		Serial:     c.Serial,
		Parallel:   c.Parallel,
		CallerRuns: c.CallerRuns,
		Failed:     c.Failed,
		Forwarded:  c.Forwarded,
		Deferred:   c.Deferred,
		MSPT:       mspt,
		TPS:        tps,
	}
}

// -----------------------------------------------------------------------------
// Propagation Events
// -----------------------------------------------------------------------------

// PropagationFlushedEvent is emitted when a merge or border buffer is flushed
// into the ready queues.
type PropagationFlushedEvent struct {
	baseEvent
	Region string
	Border bool
	In     int // events buffered
	Out    int // events after combining
}

// NewPropagationFlushedEvent creates a PropagationFlushedEvent.
func NewPropagationFlushedEvent(region string, border bool, in, out int) PropagationFlushedEvent {
	return PropagationFlushedEvent{
		baseEvent: newBaseEvent(TypePropagationFlushed),
		Region:    region,
		Border:    border,
		In:        in,
		Out:       out,
	}
}

// -----------------------------------------------------------------------------
// Scaling and Budget Events
// -----------------------------------------------------------------------------

// ScalingRecommendationEvent is emitted when the adaptive controller
// recommends changing the worker count or batch size.
type ScalingRecommendationEvent struct {
	baseEvent
	ThreadDelta int
	BatchDelta  int
	Reason      string
}

// NewScalingRecommendationEvent creates a ScalingRecommendationEvent.
func NewScalingRecommendationEvent(threadDelta, batchDelta int, reason string) ScalingRecommendationEvent {
	return ScalingRecommendationEvent{
		baseEvent:   newBaseEvent(TypeScalingRecommendation),
		ThreadDelta: threadDelta,
		BatchDelta:  batchDelta,
		Reason:      reason,
	}
}

// BudgetDeferredEvent is emitted when a budgeted request is deferred.
type BudgetDeferredEvent struct {
	baseEvent
	Tick        uint64
	RequesterID string
	Pending     int
}

// NewBudgetDeferredEvent creates a BudgetDeferredEvent.
func NewBudgetDeferredEvent(tick uint64, requesterID string, pending int) BudgetDeferredEvent {
	return BudgetDeferredEvent{
		baseEvent:   newBaseEvent(TypeBudgetDeferred),
		Tick:        tick,
		RequesterID: requesterID,
		Pending:     pending,
	}
}

// -----------------------------------------------------------------------------
// Configuration Events
// -----------------------------------------------------------------------------

// ConfigReloadedEvent is emitted when the configuration file changes. Err is
// set when the new file failed to load or validate; the previous
// configuration stays in effect.
type ConfigReloadedEvent struct {
	baseEvent
	Path string
	Err  error
}

// NewConfigReloadedEvent creates a ConfigReloadedEvent.
func NewConfigReloadedEvent(path string, err error) ConfigReloadedEvent {
	return ConfigReloadedEvent{
		baseEvent: newBaseEvent(TypeConfigReloaded),
		Path:      path,
		Err:       err,
	}
}
