package dispatch

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/ticksched/internal/classify"
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/event"
	"github.com/Iron-Ham/ticksched/internal/logging"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// MinWorkers is the smallest pool the engine runs.
const MinWorkers = 2

// Default drain backoff bounds.
const (
	DefaultInitialBackoff = 10 * time.Microsecond
	DefaultMaxBackoff     = time.Millisecond
)

// Config holds the engine's tunables.
type Config struct {
	// Workers is the pool size; 0 means max(2, NumCPU/4) and anything
	// below 2 is raised to 2.
	Workers int
	// QueueCapacity bounds pending tasks; 0 means 64 per worker.
	QueueCapacity  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultWorkers returns the automatic pool size.
func DefaultWorkers() int {
	return max(MinWorkers, runtime.NumCPU()/4)
}

func (c Config) normalized() Config {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers()
	}
	c.Workers = max(c.Workers, MinWorkers)
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = c.Workers * 64
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(DefaultMaxBackoff, c.InitialBackoff)
	}
	return c
}

// Totals are cumulative engine counters.
type Totals struct {
	Submitted  uint64
	Parallel   uint64
	CallerRuns uint64
	Failed     uint64
	Retried    uint64
}

// Engine is the parallel dispatch engine. Submit and DrainTick are meant to
// be called from the tick goroutine; everything else is safe from any
// goroutine.
type Engine struct {
	cfg      Config
	registry *classify.Registry
	bus      *event.Bus
	logger   *logging.Logger
	noisy    *logging.Throttle

	// mu guards closed and the queue channel against a concurrent Close.
	mu     sync.RWMutex
	closed bool
	queue  chan *Task

	poolMu sync.Mutex
	stops  []chan struct{}
	wg     sync.WaitGroup

	tick       atomic.Uint64
	inFlight   atomic.Int64
	peak       atomic.Int64
	firstStart atomic.Int64 // unix nanos of the tick's first submission

	notify  chan struct{}
	retryMu sync.Mutex
	retries []*Task

	submitted  atomic.Uint64
	parallel   atomic.Uint64
	callerRuns atomic.Uint64
	failed     atomic.Uint64
	retried    atomic.Uint64

	tickSubmitted  atomic.Int64
	tickCallerRuns atomic.Int64
	tickFailed     atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus publishes item.demoted events on bus.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the engine's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine starts an engine with cfg.Workers workers. Failed items are
// demoted in registry.
func NewEngine(cfg Config, registry *classify.Registry, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("dispatch: Registry is required")
	}
	cfg = cfg.normalized()

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		queue:    make(chan *Task, cfg.QueueCapacity),
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrNop(e.logger).WithComponent("dispatch")
	e.noisy = e.logger.Sometimes(time.Second)

	e.poolMu.Lock()
	e.grow(cfg.Workers)
	e.poolMu.Unlock()

	e.logger.Info("worker pool started", "workers", cfg.Workers, "queue_capacity", cfg.QueueCapacity)
	return e, nil
}

// grow starts n workers. Caller holds poolMu.
func (e *Engine) grow(n int) {
	for range n {
		stop := make(chan struct{})
		e.stops = append(e.stops, stop)
		e.wg.Add(1)
		go e.worker(stop)
	}
}

func (e *Engine) worker(stop <-chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stop:
			return
		case t, ok := <-e.queue:
			if !ok {
				return
			}
			e.execute(t, errors.ModeParallel)
		}
	}
}

// BeginTick resets the per-tick counters. Call it before the tick's first
// Submit.
func (e *Engine) BeginTick(tick uint64) {
	e.tick.Store(tick)
	e.peak.Store(e.inFlight.Load())
	e.firstStart.Store(0)
	e.tickSubmitted.Store(0)
	e.tickCallerRuns.Store(0)
	e.tickFailed.Store(0)
}

// Submit runs item on the pool, or on the calling goroutine when the queue
// is full or the engine is closed. The returned Task completes once the
// item, including any serial re-run, has finished; re-runs only happen
// inside DrainTick.
func (e *Engine) Submit(item workitem.Item) *Task {
	t := newTask(item, e.tick.Load())

	e.submitted.Add(1)
	e.tickSubmitted.Add(1)
	e.firstStart.CompareAndSwap(0, time.Now().UnixNano())
	n := e.inFlight.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	e.mu.RLock()
	if !e.closed {
		select {
		case e.queue <- t:
			e.mu.RUnlock()
			return t
		default:
		}
	}
	e.mu.RUnlock()

	e.callerRuns.Add(1)
	e.tickCallerRuns.Add(1)
	e.noisy.Debug("pool saturated, running on caller", "item_id", item.ID, "queue_len", len(e.queue))
	e.execute(t, errors.ModeCallerRuns)
	return t
}

// execute is the single completion path for a first attempt. A failure is
// demoted and queued for re-run before the in-flight counter drops, so a
// drain that sees zero in flight also sees the retry.
func (e *Engine) execute(t *Task, mode errors.Mode) {
	t.mode = mode
	if mode == errors.ModeParallel {
		e.parallel.Add(1)
	}

	res := workitem.Execute(t.item)
	if res.Err != nil {
		e.fail(t, mode, res.Err)
	} else {
		t.finish(res)
	}

	e.inFlight.Add(-1)
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Engine) fail(t *Task, mode errors.Mode, cause error) {
	t.failure = errors.NewExecutionError(t.item.ID, mode, cause).WithKind(t.item.Kind)
	e.failed.Add(1)
	e.tickFailed.Add(1)

	if e.registry.Demote(t.item.ID, cause.Error()) {
		e.logger.WithTick(t.tick).Warn("item demoted to serial",
			"item_id", t.item.ID,
			"kind", t.item.Kind,
			"mode", string(mode),
			"error", t.failure.Error(),
		)
	}
	if e.bus != nil {
		e.bus.Publish(event.NewItemDemotedEvent(t.tick, t.item.ID, t.item.Kind, string(mode), t.failure))
	}

	e.retryMu.Lock()
	e.retries = append(e.retries, t)
	e.retryMu.Unlock()
}

// RunSerial executes a serially-classified item on the calling goroutine.
// Failures are logged; serial items are never demoted further.
func (e *Engine) RunSerial(item workitem.Item) workitem.Result {
	res := workitem.Execute(item)
	if res.Err != nil {
		err := errors.NewExecutionError(item.ID, errors.ModeSerial, res.Err).WithKind(item.Kind)
		e.logger.WithTick(e.tick.Load()).Error("serial item failed", "item_id", item.ID, "error", err.Error())
	}
	return res
}

// Resize changes the number of workers. Values below 2 are raised to 2.
// Shrinking lets busy workers finish their current item first.
func (e *Engine) Resize(n int) int {
	n = max(n, MinWorkers)

	e.poolMu.Lock()
	defer e.poolMu.Unlock()

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return len(e.stops)
	}

	cur := len(e.stops)
	switch {
	case n > cur:
		e.grow(n - cur)
	case n < cur:
		for _, stop := range e.stops[n:] {
			close(stop)
		}
		e.stops = e.stops[:n]
	default:
		return cur
	}
	e.logger.Info("worker pool resized", "from", cur, "to", n)
	return n
}

// Workers returns the current pool size.
func (e *Engine) Workers() int {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	return len(e.stops)
}

// InFlight returns the number of submitted items not yet completed.
func (e *Engine) InFlight() int {
	return int(e.inFlight.Load())
}

// QueueLen returns the number of tasks waiting for a worker.
func (e *Engine) QueueLen() int {
	return len(e.queue)
}

// Totals returns cumulative counters.
func (e *Engine) Totals() Totals {
	return Totals{
		Submitted:  e.submitted.Load(),
		Parallel:   e.parallel.Load(),
		CallerRuns: e.callerRuns.Load(),
		Failed:     e.failed.Load(),
		Retried:    e.retried.Load(),
	}
}

// Close stops accepting pool work, lets workers finish what is queued and
// waits for them until ctx is done. Items submitted after Close run on the
// caller.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.poolMu.Lock()
		e.stops = nil
		e.poolMu.Unlock()
		e.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "dispatch: waiting for workers")
	}
}
