// Package sim is a synthetic host for the tick scheduler. It runs a fixed
// rate tick loop over a world of moving entities and reference points,
// submitting per-entity unit work, a stream of propagation events from
// several producer goroutines, budgeted path queries and background chores.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/ticksched/internal/budget"
	"github.com/Iron-Ham/ticksched/internal/config"
	"github.com/Iron-Ham/ticksched/internal/dispatch"
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/event"
	"github.com/Iron-Ham/ticksched/internal/logging"
	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/scaling"
	"github.com/Iron-Ham/ticksched/internal/scheduler"
	"github.com/Iron-Ham/ticksched/internal/shard"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

const (
	producers     = 4
	requesterPool = 100
	// evictDistance is how far a region's origin must be from every
	// reference point before the host unloads it.
	evictDistance = 768
	choresPerTick = 2
)

// ErrDiverged is returned by chunks the host marks as failing.
var ErrDiverged = errors.New("entity state diverged")

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for the host and its scheduler.
func WithLogger(l *logging.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithBus publishes scheduler events on bus.
func WithBus(bus *event.Bus) Option {
	return func(h *Host) { h.bus = bus }
}

// WithRealtime paces ticks at the configured tick rate. Without it ticks run
// back to back.
func WithRealtime(on bool) Option {
	return func(h *Host) { h.realtime = on }
}

// WithTickHook calls fn after every tick.
func WithTickHook(fn func(scheduler.TickReport)) Option {
	return func(h *Host) { h.hooks = append(h.hooks, fn) }
}

// Host drives a Scheduler with synthetic load.
type Host struct {
	cfg      config.SimulationConfig
	interval time.Duration
	logger   *logging.Logger
	bus      *event.Bus
	realtime bool
	hooks    []func(scheduler.TickReport)

	sched   *scheduler.Scheduler
	world   *world
	chores  *dispatch.SecondaryQueue
	loaded  *shard.Set[propagation.Region]
	shift   int
	pollGap int

	propagated atomic.Int64
	pending    atomic.Pointer[reload]
	summary    Summary
}

type reload struct {
	path string
	cfg  *config.Config
}

// New creates a Host and the Scheduler it drives from cfg.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Host{
		cfg:      cfg.Simulation,
		interval: cfg.Simulation.TickInterval(),
		chores:   dispatch.NewSecondaryQueue(64),
		loaded:   shard.NewSet[propagation.Region](shard.DefaultShards),
		shift:    cfg.Propagation.RegionShift,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger)
	h.world = newWorld(cfg.Simulation.Seed, cfg.Simulation.Entities, cfg.Simulation.ReferencePoints)

	h.pollGap = 1
	if h.interval > 0 {
		h.pollGap = max(1, int(cfg.Adaptive.RecommendInterval()/h.interval))
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(h.logger),
		scheduler.WithPropagator(h.propagate),
		scheduler.WithSecondary(h.chores),
	}
	if h.bus != nil {
		schedOpts = append(schedOpts, scheduler.WithBus(h.bus))
	}
	s, err := scheduler.New(scheduler.FromConfig(cfg), schedOpts...)
	if err != nil {
		return nil, err
	}
	h.sched = s
	h.logger = h.logger.WithComponent("sim")
	return h, nil
}

// Scheduler returns the scheduler the host drives.
func (h *Host) Scheduler() *scheduler.Scheduler {
	return h.sched
}

// Run starts the scheduler, runs the configured number of ticks (forever
// when Ticks is 0) and closes the scheduler. It stops early when ctx is
// cancelled and returns the summary so far with the context's error.
func (h *Host) Run(ctx context.Context) (Summary, error) {
	h.sched.Start(ctx)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.sched.Close(closeCtx); err != nil {
			h.logger.Warn("scheduler close", "error", err.Error())
		}
	}()

	start := time.Now()
	var ticker *time.Ticker
	if h.realtime && h.interval > 0 {
		ticker = time.NewTicker(h.interval)
		defer ticker.Stop()
	}

	h.logger.Info("simulation started",
		"entities", h.cfg.Entities,
		"reference_points", h.cfg.ReferencePoints,
		"ticks", h.cfg.Ticks,
		"realtime", h.realtime,
	)

	var err error
	for i := 0; h.cfg.Ticks == 0 || i < h.cfg.Ticks; i++ {
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		h.Step(ctx)
		if ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
	}

	h.summary.Elapsed = time.Since(start)
	h.finish()
	h.logger.Info("simulation finished", "ticks", h.summary.Ticks, "elapsed", h.summary.Elapsed)
	return h.summary, err
}

// Reconfigure queues cfg, read from path, to be applied before the next
// tick. Only the latest queued configuration is applied. It is safe to call
// from any goroutine.
func (h *Host) Reconfigure(path string, cfg *config.Config) {
	h.pending.Store(&reload{path: path, cfg: cfg})
}

func (h *Host) applyReload() {
	r := h.pending.Swap(nil)
	if r == nil {
		return
	}
	err := h.sched.Reconfigure(scheduler.FromConfig(r.cfg))
	if err == nil {
		sc := r.cfg.Simulation
		h.cfg.LightEventsPerTick = sc.LightEventsPerTick
		h.cfg.PathRequestsPerTick = sc.PathRequestsPerTick
		h.cfg.FailureRate = sc.FailureRate
		h.cfg.WorkMicros = sc.WorkMicros
		h.summary.Reloads++
		h.logger.Info("configuration reloaded", "path", r.path)
	} else {
		h.logger.Warn("configuration rejected", "path", r.path, "error", err.Error())
	}
	h.sched.Bus().Publish(event.NewConfigReloadedEvent(r.path, err))
}

// Step runs one tick and returns its report.
func (h *Host) Step(ctx context.Context) scheduler.TickReport {
	h.applyReload()

	s := h.sched
	n := s.OnTickStart()

	points := h.world.movePoints()
	s.SetReferencePoints(points)
	h.world.rollPortals()
	h.evictFarRegions()

	work := time.Duration(h.cfg.WorkMicros) * time.Microsecond
	for _, c := range h.world.chunks(s.BatchSize(), h.cfg.FailureRate) {
		s.SubmitUnit(h.chunkItem(c, work))
	}

	h.produceEvents(n, points)
	h.requestPaths(n, work)
	for range choresPerTick {
		h.chores.Offer(func() { spin(50 * time.Microsecond) })
	}

	report := s.OnTickEnd(ctx)
	h.record(report)
	if report.Tick%uint64(h.pollGap) == 0 {
		h.summary.Recommendation = s.AdaptiveRecommendation()
		if !h.summary.Recommendation.IsZero() {
			h.logger.WithTick(report.Tick).Debug("adaptive recommendation",
				"threads", h.summary.Recommendation.ThreadDelta,
				"batch", h.summary.Recommendation.BatchDelta,
				"reason", h.summary.Recommendation.Reason,
			)
		}
	}
	for _, fn := range h.hooks {
		fn(report)
	}
	return report
}

func (h *Host) chunkItem(c chunk, work time.Duration) workitem.Item {
	members := c.members
	fail := c.fail
	return workitem.Item{
		ID:       c.id,
		Kind:     c.spec.kind,
		Category: c.spec.category,
		Run: func() error {
			h.world.step(members, work)
			if fail {
				return ErrDiverged
			}
			return nil
		},
		InTransition: func() bool { return h.world.inTransition(members) },
	}
}

// produceEvents submits the tick's propagation events from several
// goroutines at once, the way lighting updates arrive from many sources.
func (h *Host) produceEvents(tick uint64, points []propagation.ReferencePoint) {
	total := h.cfg.LightEventsPerTick
	if total <= 0 {
		return
	}

	var wg conc.WaitGroup
	for p := range producers {
		share := total / producers
		if p < total%producers {
			share++
		}
		seed := h.world.rng.Uint64()
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(seed, tick))
			for range share {
				ev := h.randomEvent(rng, points)
				h.loaded.Add(propagation.RegionOf(ev.Pos, h.shift))
				h.sched.SubmitPropagationEvent(ev)
			}
		})
	}
	wg.Wait()
}

func (h *Host) randomEvent(rng *rand.Rand, points []propagation.ReferencePoint) propagation.Event {
	var cx, cz float64
	if len(points) > 0 {
		p := points[rng.IntN(len(points))]
		cx, cz = p.X, p.Z
	} else {
		cx, cz = worldSize/2, worldSize/2
	}
	x := clamp(cx+rng.NormFloat64()*160, 0, worldSize)
	z := clamp(cz+rng.NormFloat64()*160, 0, worldSize)
	return propagation.Event{
		Pos:     propagation.Pos{X: int(x), Y: 64, Z: int(z)},
		Loading: rng.IntN(100) == 0,
		Value:   rng.IntN(16),
	}
}

// propagate processes one forwarded batch.
func (h *Host) propagate(b propagation.Batch) error {
	spin(time.Duration(len(b.Events)) * time.Microsecond)
	h.propagated.Add(int64(len(b.Events)))
	return nil
}

// evictFarRegions unloads regions no reference point is near.
func (h *Host) evictFarRegions() {
	points := h.world.points
	edge := float64(int(1) << h.shift)
	for _, r := range h.loaded.Members() {
		if nearest(points, float64(r.X)*edge, float64(r.Z)*edge) <= evictDistance {
			continue
		}
		if h.loaded.Remove(r) {
			h.sched.EvictRegion(r)
			h.summary.Evicted++
		}
	}
}

func (h *Host) requestPaths(tick uint64, work time.Duration) {
	for range h.cfg.PathRequestsPerTick {
		mob := fmt.Sprintf("mob-%d", h.world.rng.IntN(requesterPool))
		item := workitem.Item{
			ID:       "path:" + mob,
			Kind:     "path/query",
			Category: workitem.ParallelEligible,
			Run: func() error {
				spin(10 * work)
				return nil
			},
		}
		h.summary.PathRequests++
		if h.sched.RequestBudgeted(mob, item) == budget.Deferred {
			h.logger.WithTick(tick).Debug("path query deferred", "requester", mob)
		}
	}
}

func (h *Host) record(r scheduler.TickReport) {
	sm := &h.summary
	sm.Ticks++
	sm.Serial += r.Serial
	sm.Parallel += r.Parallel
	sm.CallerRuns += r.Drain.CallerRuns
	sm.Failed += r.Drain.Failed
	sm.Retried += r.Drain.Retried
	sm.Secondary += r.Drain.Secondary
	sm.BatchesForwarded += r.Forwarded
	sm.Deferred += r.Deferred
	sm.Redeemed += r.Redeemed
	sm.totalTick += r.Duration
	sm.MaxTick = max(sm.MaxTick, r.Duration)
	sm.PeakInFlight = max(sm.PeakInFlight, r.Drain.PeakInFlight)
}

func (h *Host) finish() {
	sm := &h.summary
	st := h.sched.Stats()
	sm.Units = sm.Serial + sm.Parallel
	sm.Demoted = st.Demoted
	sm.EventsSubmitted = int(st.Propagation.Received)
	sm.EventsDropped = int(st.Propagation.Dropped)
	sm.EventsCombined = int(st.Propagation.Combined)
	sm.EventsPropagated = int(h.propagated.Load())
	sm.Workers = st.Workers
	sm.BatchSize = st.BatchSize
	sm.AverageTPS = st.AverageTPS
	sm.MissedTicks = st.MissedTotal
	if sm.Ticks > 0 {
		sm.AvgTick = sm.totalTick / time.Duration(sm.Ticks)
	}
	if math.IsNaN(sm.AverageTPS) {
		sm.AverageTPS = 0
	}
}

// Summary aggregates a simulation run.
type Summary struct {
	Ticks   int           `json:"ticks"`
	Elapsed time.Duration `json:"elapsed_ns"`

	Units        int `json:"units"`
	Serial       int `json:"serial"`
	Parallel     int `json:"parallel"`
	CallerRuns   int `json:"caller_runs"`
	Failed       int `json:"failed"`
	Retried      int `json:"retried"`
	Demoted      int `json:"demoted"`
	Secondary    int `json:"secondary"`
	PeakInFlight int `json:"peak_in_flight"`

	EventsSubmitted  int `json:"events_submitted"`
	EventsDropped    int `json:"events_dropped"`
	EventsCombined   int `json:"events_combined"`
	EventsPropagated int `json:"events_propagated"`
	BatchesForwarded int `json:"batches_forwarded"`
	Evicted          int `json:"regions_evicted"`

	PathRequests int `json:"path_requests"`
	Deferred     int `json:"deferred"`
	Redeemed     int `json:"redeemed"`

	AvgTick     time.Duration `json:"avg_tick_ns"`
	MaxTick     time.Duration `json:"max_tick_ns"`
	AverageTPS  float64       `json:"average_tps"`
	MissedTicks float64       `json:"missed_ticks"`

	Reloads int `json:"config_reloads"`

	Workers        int                    `json:"workers"`
	BatchSize      int                    `json:"batch_size"`
	Recommendation scaling.Recommendation `json:"recommendation"`

	totalTick time.Duration
}
