package scaling

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Default policy values.
const (
	defaultTargetQueueDepth = 100
	defaultTargetLatency    = 50 * time.Millisecond
	defaultMinWorkers       = 2
)

// Option configures a Policy.
type Option func(*Policy)

// WithTargetQueueDepth sets the queue depth the pool should hover around.
func WithTargetQueueDepth(n int) Option {
	return func(p *Policy) { p.targetQueueDepth = n }
}

// WithTargetLatency sets the per-tick processing latency target.
func WithTargetLatency(d time.Duration) Option {
	return func(p *Policy) { p.targetLatency = d }
}

// WithWorkerLimits bounds thread recommendations. A recommendation that
// would take the pool outside [minWorkers, maxWorkers] is suppressed.
// maxWorkers of 0 means unbounded.
func WithWorkerLimits(minWorkers, maxWorkers int) Option {
	return func(p *Policy) {
		p.minWorkers = minWorkers
		p.maxWorkers = maxWorkers
	}
}

// Policy holds the adaptive thresholds. It is safe for concurrent use.
type Policy struct {
	mu               sync.RWMutex
	targetQueueDepth int
	targetLatency    time.Duration
	minWorkers       int
	maxWorkers       int
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		targetQueueDepth: defaultTargetQueueDepth,
		targetLatency:    defaultTargetLatency,
		minWorkers:       defaultMinWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTargets replaces the queue depth and latency targets, for config reload.
func (p *Policy) SetTargets(queueDepth int, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targetQueueDepth = queueDepth
	p.targetLatency = latency
}

// Targets returns the current queue depth and latency targets.
func (p *Policy) Targets() (int, time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.targetQueueDepth, p.targetLatency
}

// Evaluate applies the rules to s. workers is the current pool size; pass 0
// to skip the worker bounds.
//
// Threads: +1 above twice the target depth, -1 below half of it.
// Batch: -4 above twice the target latency, +4 below half of it while the
// queue is deeper than its target.
func (p *Policy) Evaluate(s Snapshot, workers int) Recommendation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec := Recommendation{Snapshot: s}
	if s.Samples <= 0 {
		rec.Reason = "no samples"
		return rec
	}

	target := float64(p.targetQueueDepth)
	var reasons []string

	switch {
	case s.AvgQueueDepth > 2*target:
		if p.maxWorkers > 0 && workers > 0 && workers >= p.maxWorkers {
			reasons = append(reasons, fmt.Sprintf("queue depth %.1f high but pool at max %d", s.AvgQueueDepth, p.maxWorkers))
			break
		}
		rec.ThreadDelta = ThreadStep
		reasons = append(reasons, fmt.Sprintf("queue depth %.1f above %d", s.AvgQueueDepth, 2*p.targetQueueDepth))
	case s.AvgQueueDepth < target/2:
		if workers > 0 && workers <= p.minWorkers {
			break
		}
		rec.ThreadDelta = -ThreadStep
		reasons = append(reasons, fmt.Sprintf("queue depth %.1f below %.1f", s.AvgQueueDepth, target/2))
	}

	switch {
	case s.AvgLatency > 2*p.targetLatency:
		rec.BatchDelta = -BatchStep
		reasons = append(reasons, fmt.Sprintf("latency %v above %v", s.AvgLatency, 2*p.targetLatency))
	case s.AvgLatency < p.targetLatency/2 && s.AvgQueueDepth > target:
		rec.BatchDelta = BatchStep
		reasons = append(reasons, fmt.Sprintf("latency %v below %v with queue depth %.1f", s.AvgLatency, p.targetLatency/2, s.AvgQueueDepth))
	}

	if len(reasons) == 0 {
		rec.Reason = "within targets"
	} else {
		rec.Reason = strings.Join(reasons, "; ")
	}
	return rec
}
