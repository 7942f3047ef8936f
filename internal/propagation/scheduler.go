package propagation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
	"github.com/Iron-Ham/ticksched/internal/event"
	"github.com/Iron-Ham/ticksched/internal/logging"
)

// Outcome is what happened to a submitted event.
type Outcome int

const (
	// Dropped means the event was debounced.
	Dropped Outcome = iota
	// Buffered means the event is waiting in a merge buffer.
	Buffered
	// Forwarded means the event went straight to the ready queue.
	Forwarded
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Dropped:
		return "dropped"
	case Buffered:
		return "buffered"
	case Forwarded:
		return "forwarded"
	default:
		return "unknown"
	}
}

// Config holds the propagation scheduler's tunables.
type Config struct {
	Policy              TierPolicy
	MaxDelay            time.Duration
	MaxUpdatesPerSecond int
	StableThreshold     time.Duration
	MergeDelay          time.Duration
	MaxBatch            int
	BorderDelay         time.Duration
	BorderBatch         int
	RegionShift         int
	// MaxForwardPerTick caps batches released by Drain; 0 means no cap.
	MaxForwardPerTick int
}

// Stats are cumulative counters plus current queue sizes.
type Stats struct {
	Received        uint64
	Dropped         uint64
	Buffered        uint64
	Forwarded       uint64 // batches released by Drain
	ForwardedEvents uint64
	Combined        uint64 // events removed by the combiner
	Pending         int    // events in merge and border buffers
	Ready           map[Tier]int
	Debounced       int // coordinates with a debounce entry
}

// Scheduler is the priority propagation scheduler. Submit may be called
// from any goroutine.
type Scheduler struct {
	cfg      Config
	clock    clock.Clock
	combine  Combiner
	bus      *event.Bus
	logger   *logging.Logger
	noisy    *logging.Throttle
	debounce *Debouncer
	merge    *mergeBuffer
	border   *mergeBuffer
	ready    readyQueue
	points   atomic.Pointer[[]ReferencePoint]

	startOnce sync.Once
	wg        sync.WaitGroup

	received        atomic.Uint64
	dropped         atomic.Uint64
	buffered        atomic.Uint64
	forwarded       atomic.Uint64
	forwardedEvents atomic.Uint64
	combined        atomic.Uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source for debounce and queue timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithCombiner replaces the default LastWriteWins combiner.
func WithCombiner(c Combiner) Option {
	return func(s *Scheduler) { s.combine = c }
}

// WithBus publishes propagation.flushed events on bus.
func WithBus(bus *event.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithDebouncer uses an existing debouncer so its state can be owned and
// reset by the caller.
func WithDebouncer(d *Debouncer) Option {
	return func(s *Scheduler) { s.debounce = d }
}

// New creates a Scheduler. Call Start to run the background flusher; without
// it, buffers are only flushed by Flush or when they fill.
func New(cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:     cfg,
		combine: LastWriteWins,
		merge:   newMergeBuffer(max(cfg.MaxBatch, 1), false),
		border:  newMergeBuffer(max(cfg.BorderBatch, 1), true),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clock = clock.OrReal(s.clock)
	s.logger = logging.OrNop(s.logger).WithComponent("propagation")
	s.noisy = s.logger.Sometimes(5 * time.Second)
	if s.debounce == nil {
		s.debounce = NewDebouncer(cfg.MaxUpdatesPerSecond, cfg.StableThreshold)
	}
	empty := []ReferencePoint{}
	s.points.Store(&empty)
	return s
}

// SetReferencePoints replaces the reference points used for tiering.
func (s *Scheduler) SetReferencePoints(points []ReferencePoint) {
	cp := append([]ReferencePoint(nil), points...)
	s.points.Store(&cp)
}

// ReferencePoints returns the current reference points.
func (s *Scheduler) ReferencePoints() []ReferencePoint {
	return *s.points.Load()
}

// Submit tiers, debounces and buffers ev.
func (s *Scheduler) Submit(ev Event) Outcome {
	s.received.Add(1)
	now := s.clock.Now()

	tier := s.cfg.Policy.Classify(ev, *s.points.Load())

	if !ev.Loading && !s.debounce.Allow(ev.Pos, now) {
		s.dropped.Add(1)
		s.noisy.Debug("debounced propagation events", "pos", ev.Pos, "dropped_total", s.dropped.Load())
		return Dropped
	}

	region := RegionOf(ev.Pos, s.cfg.RegionShift)
	border := OnBorder(ev.Pos, s.cfg.RegionShift)
	if tier == Critical {
		s.ready.push(Batch{
			Tier:   Critical,
			Region: region,
			Border: border,
			Events: []Event{ev},
			Oldest: now,
			Ready:  now,
		})
		return Forwarded
	}

	q := queued{ev: ev, tier: tier, at: now}
	buf := s.merge
	if border {
		buf = s.border
	}
	if full := buf.add(region, q); full != nil {
		s.emit(region, buf.border, full, now)
	}
	s.buffered.Add(1)
	return Buffered
}

// emit combines a detached buffer into a batch and queues it.
func (s *Scheduler) emit(region Region, border bool, evs []queued, now time.Time) {
	if len(evs) == 0 {
		return
	}
	tier := Low
	oldest := evs[0].at
	raw := make([]Event, len(evs))
	for i, q := range evs {
		raw[i] = q.ev
		tier = max(tier, q.tier)
		if q.at.Before(oldest) {
			oldest = q.at
		}
	}

	out := s.combine(raw)
	if removed := len(raw) - len(out); removed > 0 {
		s.combined.Add(uint64(removed))
	}
	if len(out) == 0 {
		return
	}

	s.ready.push(Batch{
		Tier:   tier,
		Region: region,
		Border: border,
		Events: out,
		Oldest: oldest,
		Ready:  now,
	})
	if s.bus != nil {
		s.bus.Publish(event.NewPropagationFlushedEvent(region.String(), border, len(raw), len(out)))
	}
}

// Flush moves every buffered event, in both buffers, to the ready queue.
func (s *Scheduler) Flush() {
	s.flushBuffer(s.merge)
	s.flushBuffer(s.border)
}

func (s *Scheduler) flushBuffer(buf *mergeBuffer) {
	now := s.clock.Now()
	for _, re := range buf.takeAll() {
		s.emit(re.region, buf.border, re.events, now)
	}
}

// Drain releases ready batches for this tick: most urgent first, at most
// MaxForwardPerTick of them, plus any non-Critical batches past MaxDelay.
func (s *Scheduler) Drain() []Batch {
	out := s.ready.pump(s.clock.Now(), s.cfg.MaxForwardPerTick, s.cfg.MaxDelay)
	if len(out) > 0 {
		s.forwarded.Add(uint64(len(out)))
		n := 0
		for _, b := range out {
			n += len(b.Events)
		}
		s.forwardedEvents.Add(uint64(n))
	}
	return out
}

// Start runs the background flusher until ctx is done. The merge buffer is
// flushed every MergeDelay and the border buffer every BorderDelay, so no
// buffered event waits longer than its delay. Idle debounce entries are
// swept once a second. Start returns immediately; Wait blocks until the
// flusher exits.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Wait blocks until the flusher started by Start has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	mergeTick := time.NewTicker(positive(s.cfg.MergeDelay, 10*time.Millisecond))
	borderTick := time.NewTicker(positive(s.cfg.BorderDelay, 20*time.Millisecond))
	sweepTick := time.NewTicker(time.Second)
	defer mergeTick.Stop()
	defer borderTick.Stop()
	defer sweepTick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-mergeTick.C:
			s.flushBuffer(s.merge)
		case <-borderTick.C:
			s.flushBuffer(s.border)
		case <-sweepTick.C:
			if n := s.debounce.Sweep(s.clock.Now()); n > 0 {
				s.logger.Debug("swept idle debounce entries", "count", n)
			}
		}
	}
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// EvictRegion drops debounce state and buffered events for an unloaded
// region. Batches already in the ready queue are kept.
func (s *Scheduler) EvictRegion(region Region) {
	n := s.debounce.EvictRegion(region, s.cfg.RegionShift)
	s.merge.evict(region)
	s.border.evict(region)
	s.logger.Debug("region evicted", "region", region.String(), "debounce_entries", n)
}

// Reset clears debounce state, both buffers and the ready queues.
func (s *Scheduler) Reset() {
	s.debounce.Clear()
	s.merge.clear()
	s.border.clear()
	s.ready.clear()
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Received:        s.received.Load(),
		Dropped:         s.dropped.Load(),
		Buffered:        s.buffered.Load(),
		Forwarded:       s.forwarded.Load(),
		ForwardedEvents: s.forwardedEvents.Load(),
		Combined:        s.combined.Load(),
		Pending:         s.merge.size() + s.border.size(),
		Ready:           s.ready.depth(),
		Debounced:       s.debounce.Len(),
	}
}
