// Package scaling turns observed queue depth and processing latency into
// advisory worker-count and batch-size adjustments.
//
// The scheduler records one sample per drained tick. The [Controller]
// aggregates samples over a decaying window and asks its [Policy] for a
// [Recommendation]. Recommendations are never applied here: the host reads
// them at a slow cadence and decides whether to resize the pool.
//
// The core types are:
//
//   - [Policy]: the ±1 thread / ±4 batch rules and optional worker bounds
//   - [Controller]: the windowed sample aggregate
//   - [Monitor]: feeds the controller from batch.drained events and publishes
//     non-zero recommendations on the event bus
//
// # Usage
//
//	ctrl := scaling.NewController(
//	    scaling.NewPolicy(
//	        scaling.WithTargetQueueDepth(100),
//	        scaling.WithTargetLatency(50*time.Millisecond),
//	    ),
//	    10*time.Second,
//	)
//
//	monitor := scaling.NewMonitor(bus, ctrl, 5*time.Second)
//	monitor.OnRecommendation(func(r scaling.Recommendation) {
//	    log.Printf("threads %+d batch %+d: %s", r.ThreadDelta, r.BatchDelta, r.Reason)
//	})
//	go monitor.Start(ctx)
//	defer monitor.Stop()
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package scaling
