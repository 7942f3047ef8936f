// Package scheduler is the host-facing tick scheduler. It ties together the
// safety classifier, the parallel dispatch engine and its drain barrier, the
// propagation scheduler, the per-tick budget and the adaptive controller
// behind a small set of tick hooks.
//
// # Tick Lifecycle
//
// The host drives ticks from a single goroutine:
//
//	s, err := scheduler.New(scheduler.FromConfig(cfg), scheduler.WithLogger(logger))
//	if err != nil { ... }
//	s.Start(ctx)
//	defer s.Close(context.Background())
//
//	for {
//	    s.OnTickStart()
//	    for _, e := range entities {
//	        s.SubmitUnit(e.WorkItem())
//	    }
//	    s.RequestBudgeted(mob.ID, pathQuery)
//	    report := s.OnTickEnd(ctx)
//	    ...
//	}
//
// SubmitUnit runs serial items inline and hands parallel ones to the pool.
// OnTickEnd forwards ready propagation batches, re-attempts deferred
// budgeted requests against the next tick's budget, and then blocks in the
// drain barrier until every unit of the tick has completed. When it returns
// nothing submitted during the tick is still running.
//
// SubmitPropagationEvent may be called from any goroutine.
//
// # State
//
// Demotions, transition countdowns, debounce entries and deferred requests
// live in a [State] owned by the scheduler. Reset clears it, typically after
// a configuration reload.
package scheduler
