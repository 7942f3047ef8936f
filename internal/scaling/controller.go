package scaling

import (
	"sync"
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
)

// DefaultWindow is the monitoring window used when none is configured.
const DefaultWindow = 10 * time.Second

type aggregate struct {
	depth      float64
	processing float64 // nanoseconds
	count      float64
}

func (a aggregate) add(b aggregate) aggregate {
	return aggregate{a.depth + b.depth, a.processing + b.processing, a.count + b.count}
}

func (a aggregate) halve() aggregate {
	return aggregate{a.depth / 2, a.processing / 2, a.count / 2}
}

// Controller aggregates processing samples over a decaying window. Each
// window boundary halves the previous window's weight; a window with no
// samples for two full periods is forgotten.
type Controller struct {
	policy *Policy
	clock  clock.Clock
	window time.Duration

	mu          sync.Mutex
	cur         aggregate
	prev        aggregate
	windowStart time.Time
}

// NewController creates a Controller. A non-positive window uses DefaultWindow.
func NewController(policy *Policy, window time.Duration, opts ...ControllerOption) *Controller {
	if policy == nil {
		policy = NewPolicy()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Controller{policy: policy, window: window}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = clock.OrReal(c.clock)
	c.windowStart = c.clock.Now()
	return c
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithClock sets the controller's time source.
func WithClock(c clock.Clock) ControllerOption {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// Policy returns the controller's policy.
func (c *Controller) Policy() *Policy {
	return c.policy
}

// RecordProcessing adds one sample: the queue depth seen while a batch was
// processed and how long processing took.
func (c *Controller) RecordProcessing(queueDepth int, processing time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(c.clock.Now())
	c.cur = c.cur.add(aggregate{
		depth:      float64(max(queueDepth, 0)),
		processing: float64(max(processing, 0)),
		count:      1,
	})
}

// roll advances the window. Callers hold c.mu.
func (c *Controller) roll(now time.Time) {
	elapsed := now.Sub(c.windowStart)
	if elapsed < c.window {
		return
	}
	if elapsed >= 2*c.window {
		c.prev = aggregate{}
	} else {
		c.prev = c.cur.add(c.prev.halve()).halve()
	}
	c.cur = aggregate{}
	c.windowStart = now
}

// Snapshot returns the current windowed averages.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roll(c.clock.Now())

	total := c.cur.add(c.prev)
	if total.count <= 0 {
		return Snapshot{}
	}
	return Snapshot{
		AvgQueueDepth: total.depth / total.count,
		AvgLatency:    time.Duration(total.processing / total.count),
		Samples:       total.count,
	}
}

// Recommendation evaluates the policy against the current snapshot. workers
// is the current pool size, or 0 to ignore worker bounds.
func (c *Controller) Recommendation(workers int) Recommendation {
	return c.policy.Evaluate(c.Snapshot(), workers)
}

// Reset discards all samples.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = aggregate{}
	c.prev = aggregate{}
	c.windowStart = c.clock.Now()
}
