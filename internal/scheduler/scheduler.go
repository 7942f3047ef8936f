package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/ticksched/internal/budget"
	"github.com/Iron-Ham/ticksched/internal/classify"
	"github.com/Iron-Ham/ticksched/internal/clock"
	"github.com/Iron-Ham/ticksched/internal/dispatch"
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/event"
	"github.com/Iron-Ham/ticksched/internal/logging"
	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/scaling"
	"github.com/Iron-Ham/ticksched/internal/tick"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// Outcome is how SubmitUnit handled an item.
type Outcome int

const (
	// RanSerial means the item ran inline on the calling goroutine.
	RanSerial Outcome = iota
	// Dispatched means the item was handed to the worker pool.
	Dispatched
	// Rejected means the item was invalid or the scheduler is closed.
	Rejected
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case RanSerial:
		return "serial"
	case Dispatched:
		return "dispatched"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Propagator processes one forwarded batch of propagation events. It runs as
// a work item, on a pool worker or inline depending on classification.
type Propagator func(batch propagation.Batch) error

// Kinds of the work items created for propagation batches.
const (
	KindPropagation       = "propagation/interior"
	KindPropagationBorder = "propagation/border"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithState uses existing session state instead of creating it.
func WithState(st *State) Option {
	return func(s *Scheduler) { s.state = st }
}

// WithBus publishes scheduler events on bus.
func WithBus(bus *event.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithLogger sets the logger for the scheduler and its components.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock sets the time source for tick timing, debounce and demotions.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSecondary sets the low-priority task source polled by the drain barrier.
func WithSecondary(src dispatch.SecondarySource) Option {
	return func(s *Scheduler) { s.secondary = src }
}

// WithPropagator sets the function that processes forwarded propagation batches.
func WithPropagator(p Propagator) Option {
	return func(s *Scheduler) { s.propagator = p }
}

// Scheduler is the hybrid tick scheduler. OnTickStart, SubmitUnit,
// RequestBudgeted and OnTickEnd belong to the host's tick goroutine;
// everything else is safe from any goroutine.
type Scheduler struct {
	cfg        Config
	state      *State
	clock      clock.Clock
	bus        *event.Bus
	logger     *logging.Logger
	noisy      *logging.Throttle
	secondary  dispatch.SecondarySource
	propagator Propagator

	classifier atomic.Pointer[classify.Classifier]
	engine     *dispatch.Engine
	prop       *propagation.Scheduler
	ctrl       *scaling.Controller
	monitor    *scaling.Monitor
	tracker    *tick.Tracker

	batchSize atomic.Int64
	tick      atomic.Uint64
	tickStart time.Time
	closed    atomic.Bool

	lifeMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tickSerial   atomic.Int64
	tickParallel atomic.Int64
	tickRejected atomic.Int64
	tickDeferred atomic.Int64
	tickRedeemed atomic.Int64

	serial   atomic.Uint64
	rejected atomic.Uint64
	deferred atomic.Uint64
	redeemed atomic.Uint64
}

// New creates a Scheduler and starts its worker pool. Call Start to run the
// background propagation flusher and the adaptive monitor, and Close to stop
// everything.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	if s.bus == nil {
		s.bus = event.NewBus()
	}
	if s.state == nil {
		s.state = NewState(cfg, s.clock)
	}
	base := logging.OrNop(s.logger)
	s.logger = base.WithComponent("scheduler")
	s.noisy = s.logger.Sometimes(5 * time.Second)
	s.batchSize.Store(int64(max(cfg.BatchSize, MinBatchSize)))

	c, err := classify.New(cfg.Classifier, s.state.Registry, s.state.Transitions, s.state.Gauge)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: classifier")
	}
	s.classifier.Store(c)

	s.engine, err = dispatch.NewEngine(cfg.Dispatch, s.state.Registry,
		dispatch.WithBus(s.bus),
		dispatch.WithLogger(base),
	)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: dispatch")
	}

	s.prop = propagation.New(cfg.Propagation,
		propagation.WithClock(s.clock),
		propagation.WithBus(s.bus),
		propagation.WithLogger(base),
		propagation.WithDebouncer(s.state.Debouncer),
	)

	policy := scaling.NewPolicy(
		scaling.WithTargetQueueDepth(cfg.TargetQueueDepth),
		scaling.WithTargetLatency(cfg.TargetLatency),
	)
	s.ctrl = scaling.NewController(policy, cfg.Window, scaling.WithClock(s.clock))
	s.monitor = scaling.NewMonitor(s.bus, s.ctrl, cfg.RecommendInterval)
	s.monitor.SetCurrentWorkers(s.engine.Workers())
	s.monitor.Attach()
	if cfg.ApplyRecommendations {
		s.monitor.OnRecommendation(func(r scaling.Recommendation) { s.ApplyRecommendation(r) })
	}

	s.tracker = tick.NewTracker(cfg.TickRate, s.clock)
	return s, nil
}

// Start runs the propagation flusher and the adaptive monitor until ctx is
// done or Close is called. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel != nil || s.closed.Load() {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.prop.Start(ctx)
	s.wg.Go(func() { s.monitor.Start(ctx) })
	s.logger.Info("scheduler started",
		"workers", s.engine.Workers(),
		"budget_per_tick", s.cfg.BudgetPerTick,
		"serial_kinds", s.classifier.Load().KindPatterns(),
	)
}

// Close stops the background goroutines and the worker pool, waiting for
// busy workers until ctx is done. Units submitted after Close are rejected.
func (s *Scheduler) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.lifeMu.Lock()
	cancel := s.cancel
	s.lifeMu.Unlock()
	if cancel != nil {
		cancel()
		s.prop.Wait()
		s.wg.Wait()
	}
	s.monitor.Detach()

	if err := s.engine.Close(ctx); err != nil {
		return err
	}
	s.logger.Info("scheduler stopped", "ticks", s.tick.Load())
	return nil
}

// OnTickStart begins a new tick and returns its number. Ticks are numbered
// from 1. Requests deferred on earlier ticks are re-attempted first, against
// the new tick's budget, so they run ahead of the tick's fresh requests.
func (s *Scheduler) OnTickStart() uint64 {
	n := s.tick.Add(1)
	s.tickStart = s.clock.Now()
	s.tracker.OnTick()
	s.engine.BeginTick(n)

	s.tickSerial.Store(0)
	s.tickParallel.Store(0)
	s.tickRejected.Store(0)
	s.tickDeferred.Store(0)

	redeemed := s.state.Ledger.DrainDue(n, func(_ string, item workitem.Item) {
		s.SubmitUnit(item)
	})
	s.tickRedeemed.Store(int64(redeemed))
	s.redeemed.Add(uint64(redeemed))

	if missed := s.tracker.MissedTicks(); missed > 0 {
		s.noisy.Warn("tick overran", "tick", n, "missed_ticks", missed, "mspt", s.tracker.MSPT())
	}
	return n
}

// CurrentTick returns the number of the tick in progress.
func (s *Scheduler) CurrentTick() uint64 {
	return s.tick.Load()
}

// SubmitUnit classifies item and either runs it inline or dispatches it to
// the pool. Dispatched items are complete by the time OnTickEnd returns.
func (s *Scheduler) SubmitUnit(item workitem.Item) Outcome {
	if s.closed.Load() {
		s.reject(item, errors.ErrSchedulerClosed)
		return Rejected
	}
	if err := item.Validate(); err != nil {
		s.reject(item, err)
		return Rejected
	}

	s.state.Gauge.Add(1)
	d := s.classifier.Load().Classify(item)
	if d.Route == classify.Serial {
		s.tickSerial.Add(1)
		s.serial.Add(1)
		s.engine.RunSerial(item)
		return RanSerial
	}

	s.tickParallel.Add(1)
	s.engine.Submit(item)
	return Dispatched
}

func (s *Scheduler) reject(item workitem.Item, err error) {
	s.tickRejected.Add(1)
	s.rejected.Add(1)
	s.noisy.Warn("work item rejected", "item_id", item.ID, "error", err.Error())
}

// SubmitPropagationEvent tiers, debounces and buffers ev. Forwarded batches
// are processed during OnTickEnd.
func (s *Scheduler) SubmitPropagationEvent(ev propagation.Event) propagation.Outcome {
	return s.prop.Submit(ev)
}

// RequestBudgeted admits item if this tick's budget allows and otherwise
// defers it under id. A later deferral for the same id replaces the earlier
// one. Deferred items are re-attempted by the next OnTickStart.
func (s *Scheduler) RequestBudgeted(id string, item workitem.Item) budget.Status {
	n := s.tick.Load()
	if s.state.Ledger.TryAcquire(n) {
		s.SubmitUnit(item)
		return budget.Accepted
	}

	s.state.Ledger.RecordDeferred(n, id, item)
	s.tickDeferred.Add(1)
	s.deferred.Add(1)
	s.bus.Publish(event.NewBudgetDeferredEvent(n, id, s.state.Ledger.Deferred()))
	return budget.Deferred
}

// ForgetRequester drops a deferred request whose requester went away.
func (s *Scheduler) ForgetRequester(id string) error {
	return s.state.Ledger.Forget(id)
}

// OnTickEnd forwards ready propagation batches and then waits in the drain barrier until every unit of
// the tick has completed. ctx only limits how long the barrier keeps pulling
// secondary work; it never abandons submitted units.
func (s *Scheduler) OnTickEnd(ctx context.Context) TickReport {
	n := s.tick.Load()

	batches := s.prop.Drain()
	forwardedEvents := 0
	for _, b := range batches {
		forwardedEvents += len(b.Events)
		s.submitBatch(b)
	}

	drain := s.engine.DrainTick(ctx, s.secondary)
	s.state.Gauge.Roll()

	report := TickReport{
		Tick:            n,
		Duration:        s.clock.Now().Sub(s.tickStart),
		Serial:          int(s.tickSerial.Load()),
		Parallel:        int(s.tickParallel.Load()),
		Rejected:        int(s.tickRejected.Load()),
		Forwarded:       len(batches),
		ForwardedEvents: forwardedEvents,
		Deferred:        int(s.tickDeferred.Load()),
		Redeemed:        int(s.tickRedeemed.Load()),
		PendingDeferred: s.state.Ledger.Deferred(),
		Drain:           drain,
		MSPT:            s.tracker.MSPT(),
		TPS:             s.tracker.TPS(),
		MissedTicks:     s.tracker.MissedTicks(),
	}

	if drain.Submitted > 0 {
		s.bus.Publish(event.NewBatchDrainedEvent(n, drain.Submitted, drain.PeakInFlight, drain.Processing))
	}
	s.bus.Publish(event.NewTickCompletedEvent(n, report.Duration, event.TickCounters{
		Serial:     report.Serial,
		Parallel:   report.Parallel,
		CallerRuns: drain.CallerRuns,
		Failed:     drain.Failed,
		Forwarded:  report.Forwarded,
		Deferred:   report.Deferred,
	}, float64(report.MSPT)/float64(time.Millisecond), report.TPS))

	if drain.Failed > 0 {
		s.logger.WithTick(n).Info("tick recovered from failed units",
			"failed", drain.Failed,
			"retried", drain.Retried,
			"retry_failed", drain.RetryFailed,
		)
	}
	return report
}

// submitBatch turns a forwarded batch into a work item. Border batches touch
// neighbouring regions and always run serially.
func (s *Scheduler) submitBatch(b propagation.Batch) {
	if s.propagator == nil {
		return
	}
	item := workitem.Item{
		ID:       fmt.Sprintf("propagation:%s", b.Region),
		Kind:     KindPropagation,
		Category: workitem.ParallelEligible,
		Run:      func() error { return s.propagator(b) },
	}
	if b.Border {
		item.ID += ":border"
		item.Kind = KindPropagationBorder
		item.Category = workitem.AlwaysSerial
	}
	s.SubmitUnit(item)
}

// AdaptiveRecommendation returns the controller's current advice. It is
// meant to be polled at a slow cadence, not every tick.
func (s *Scheduler) AdaptiveRecommendation() scaling.Recommendation {
	return s.ctrl.Recommendation(s.engine.Workers())
}

// ApplyRecommendation resizes the pool and adjusts the batch size by r.
// It returns the resulting worker count and batch size.
func (s *Scheduler) ApplyRecommendation(r scaling.Recommendation) (workers, batchSize int) {
	workers = s.engine.Workers()
	if r.ThreadDelta != 0 {
		workers = s.engine.Resize(workers + r.ThreadDelta)
		s.monitor.SetCurrentWorkers(workers)
	}
	batchSize = int(s.batchSize.Load())
	if r.BatchDelta != 0 {
		batchSize = max(batchSize+r.BatchDelta, MinBatchSize)
		s.batchSize.Store(int64(batchSize))
	}
	s.logger.Info("applied adaptive recommendation",
		"thread_delta", r.ThreadDelta,
		"batch_delta", r.BatchDelta,
		"workers", workers,
		"batch_size", batchSize,
		"reason", r.Reason,
	)
	return workers, batchSize
}

// BatchSize returns how many host entities the host should group per unit.
func (s *Scheduler) BatchSize() int {
	return int(s.batchSize.Load())
}

// Resize changes the worker pool size; values below 2 are raised to 2.
func (s *Scheduler) Resize(n int) int {
	n = s.engine.Resize(n)
	s.monitor.SetCurrentWorkers(n)
	return n
}

// SetReferencePoints replaces the points propagation events are tiered against.
func (s *Scheduler) SetReferencePoints(points []propagation.ReferencePoint) {
	s.prop.SetReferencePoints(points)
}

// EvictRegion drops debounce state and buffered events for an unloaded region.
func (s *Scheduler) EvictRegion(region propagation.Region) {
	s.prop.EvictRegion(region)
}

// Demote forces id to run serially for the rest of the session.
func (s *Scheduler) Demote(id, reason string) bool {
	return s.state.Registry.Demote(id, reason)
}

// Reset clears the demotion registry, transition countdowns, debounce and
// merge buffers, the ready queues, the budget ledger and adaptive samples.
func (s *Scheduler) Reset() {
	demoted := s.state.Registry.Len()
	deferred := s.state.Ledger.Deferred()
	s.state.Reset()
	s.prop.Reset()
	s.ctrl.Reset()
	s.logger.Info("scheduler state reset", "demotions_cleared", demoted, "deferred_cleared", deferred)
}

// Reconfigure applies a reloaded configuration: pool size, classifier rules,
// budget and adaptive targets, followed by Reset. Propagation radii and
// buffer sizes keep their startup values.
func (s *Scheduler) Reconfigure(cfg Config) error {
	c, err := classify.New(cfg.Classifier, s.state.Registry, s.state.Transitions, s.state.Gauge)
	if err != nil {
		return errors.Wrap(err, "scheduler: classifier")
	}
	s.classifier.Store(c)

	workers := cfg.Dispatch.Workers
	if workers == 0 {
		workers = dispatch.DefaultWorkers()
	}
	s.Resize(workers)
	s.state.Ledger.SetPerTick(cfg.BudgetPerTick)
	s.ctrl.Policy().SetTargets(cfg.TargetQueueDepth, cfg.TargetLatency)
	s.batchSize.Store(int64(max(cfg.BatchSize, MinBatchSize)))
	s.Reset()
	return nil
}

// Bus returns the event bus the scheduler publishes on.
func (s *Scheduler) Bus() *event.Bus {
	return s.bus
}

// State returns the scheduler's session state.
func (s *Scheduler) State() *State {
	return s.state
}
