// Package event provides the pub-sub bus the scheduler uses to report what
// happened during a tick without coupling its components to each other or to
// whatever is watching (the dashboard, the tick recorder, the scaling
// monitor).
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Dispatch:
//   - [ItemDemotedEvent]: a work item failed off the tick goroutine and was demoted
//   - [BatchDrainedEvent]: the drain barrier completed for a tick
//
// Tick:
//   - [TickCompletedEvent]: OnTickEnd finished, with per-tick counters
//
// Propagation:
//   - [PropagationFlushedEvent]: a merge or border buffer was flushed
//
// Scaling and budget:
//   - [ScalingRecommendationEvent]: the adaptive controller produced a non-zero recommendation
//   - [BudgetDeferredEvent]: a budgeted request was deferred to a later tick
//
// Configuration:
//   - [ConfigReloadedEvent]: the configuration file changed on disk
//
// # Thread Safety
//
// Handlers are called synchronously on the publishing goroutine. Dispatch
// events may be published from pool workers, so handlers must not assume
// they run on the tick goroutine. A panicking handler is recovered and
// reported; it does not stop delivery to other handlers.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeItemDemoted, func(e event.Event) {
//	    d := e.(event.ItemDemotedEvent)
//	    log.Printf("demoted %s at tick %d", d.ItemID, d.Tick)
//	})
//
//	bus.Publish(event.NewTickCompletedEvent(stats))
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action", for example
// item.demoted, tick.completed, batch.drained.
package event
