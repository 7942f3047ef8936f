// Package classify decides, per work item and per tick, whether the item
// may run on the worker pool or must run on the tick goroutine.
//
// A [Classifier] combines five rules, in order:
//
//   - the item's static category is AlwaysSerial
//   - the item's identity is in the [Registry] of demoted items
//   - the item's kind matches a configured glob ([KindRules])
//   - the item is ConditionallySerial and inside, or recently out of, a
//     boundary transition ([Transitions])
//   - the tick's load, as reported by the [LoadGauge], is below the
//     configured minimum
//
// Any rule firing routes the item serially. The registry only grows during
// a session; it is cleared by [Registry.Clear] on a configuration reload.
//
// All types are safe for concurrent use. Per-identity state is kept in
// sharded maps so classifying unrelated items never contends on one lock.
package classify
