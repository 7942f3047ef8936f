package scheduler

import (
	"time"

	"github.com/Iron-Ham/ticksched/internal/classify"
	"github.com/Iron-Ham/ticksched/internal/dispatch"
	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/scaling"
)

// TickReport summarizes one tick.
type TickReport struct {
	Tick     uint64
	Duration time.Duration

	Serial   int // units run inline
	Parallel int // units dispatched to the pool
	Rejected int

	Forwarded       int // propagation batches processed
	ForwardedEvents int

	Deferred        int // budgeted requests deferred this tick
	Redeemed        int // deferred requests re-attempted at the start of the tick
	PendingDeferred int

	Drain dispatch.DrainReport

	MSPT        time.Duration
	TPS         float64
	MissedTicks int
}

// Units returns every unit the tick executed.
func (r TickReport) Units() int {
	return r.Serial + r.Parallel
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Tick     uint64
	Workers  int
	InFlight int
	QueueLen int

	Dispatch dispatch.Totals
	Serial   uint64
	Rejected uint64

	Demoted     int
	Transitions int
	Load        int

	Propagation propagation.Stats

	BudgetPerTick    int
	BudgetRemaining  int
	DeferredRequests int
	DeferredTotal    uint64
	RedeemedTotal    uint64

	MSPT        time.Duration
	TPS         float64
	AverageTPS  float64
	MissedTotal float64

	BatchSize      int
	Recommendation scaling.Recommendation
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	n := s.tick.Load()
	return Stats{
		Tick:             n,
		Workers:          s.engine.Workers(),
		InFlight:         s.engine.InFlight(),
		QueueLen:         s.engine.QueueLen(),
		Dispatch:         s.engine.Totals(),
		Serial:           s.serial.Load(),
		Rejected:         s.rejected.Load(),
		Demoted:          s.state.Registry.Len(),
		Transitions:      s.state.Transitions.Active(),
		Load:             s.state.Gauge.Load(),
		Propagation:      s.prop.Stats(),
		BudgetPerTick:    s.state.Ledger.PerTick(),
		BudgetRemaining:  s.state.Ledger.Remaining(n),
		DeferredRequests: s.state.Ledger.Deferred(),
		DeferredTotal:    s.deferred.Load(),
		RedeemedTotal:    s.redeemed.Load(),
		MSPT:             s.tracker.MSPT(),
		TPS:              s.tracker.TPS(),
		AverageTPS:       s.tracker.AverageTPS(),
		MissedTotal:      s.tracker.TotalMissed(),
		BatchSize:        s.BatchSize(),
		Recommendation:   s.AdaptiveRecommendation(),
	}
}

// Demotions returns the current demotion registry contents.
func (s *Scheduler) Demotions() map[string]classify.Demotion {
	return s.state.Registry.Snapshot()
}
