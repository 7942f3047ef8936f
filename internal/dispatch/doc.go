// Package dispatch runs parallel-classified work items on a bounded worker
// pool and provides the end-of-tick drain barrier.
//
// # Submission
//
// [Engine.Submit] increments the in-flight counter and hands the item to the
// pool. When the pool's queue is full the submitter runs the item itself
// (caller-runs), so back-pressure degrades to serial execution instead of
// unbounded queueing.
//
// # Failure handling
//
// An item that returns an error or panics off the tick goroutine is demoted
// in the [classify.Registry] at once and queued for a serial re-run. The
// re-run happens inside [Engine.DrainTick] on the tick goroutine, so the
// tick's result is never dropped and the demotion is visible before the next
// tick classifies the item again.
//
// # Drain barrier
//
// [Engine.DrainTick] returns only once every item submitted during the tick
// has completed and all re-runs are done. While waiting it polls a
// [SecondarySource] for low-priority work and otherwise sleeps with
// exponential backoff, waking early whenever a worker finishes.
package dispatch
