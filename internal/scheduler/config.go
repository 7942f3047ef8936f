package scheduler

import (
	"time"

	"github.com/Iron-Ham/ticksched/internal/classify"
	"github.com/Iron-Ham/ticksched/internal/config"
	"github.com/Iron-Ham/ticksched/internal/dispatch"
	"github.com/Iron-Ham/ticksched/internal/propagation"
)

// Config holds every tunable the scheduler consumes.
type Config struct {
	Dispatch    dispatch.Config
	Classifier  classify.Config
	Propagation propagation.Config

	TargetQueueDepth  int
	TargetLatency     time.Duration
	Window            time.Duration
	RecommendInterval time.Duration
	// ApplyRecommendations resizes the pool and adjusts BatchSize whenever
	// the monitor publishes a recommendation.
	ApplyRecommendations bool

	BudgetPerTick int
	TickRate      int
	BatchSize     int
}

// MinBatchSize is the smallest batch size applied recommendations produce.
const MinBatchSize = 4

// FromConfig maps the file configuration onto a scheduler Config.
func FromConfig(c *config.Config) Config {
	if c == nil {
		c = config.Default()
	}
	p := c.Propagation
	return Config{
		Dispatch: dispatch.Config{
			Workers:        c.Dispatch.Workers,
			QueueCapacity:  c.Dispatch.QueueCapacity,
			InitialBackoff: c.Drain.InitialBackoff(),
			MaxBackoff:     c.Drain.MaxBackoff(),
		},
		Classifier: classify.Config{
			SerialKinds:        c.Classifier.SerialKinds,
			TransitionTicks:    c.Classifier.TransitionTicks,
			MinLoadForParallel: c.Dispatch.MinLoadForParallel,
		},
		Propagation: propagation.Config{
			Policy: propagation.TierPolicy{
				CriticalRadius:    p.CriticalRadius,
				HighRadius:        p.HighRadius,
				NormalRadius:      p.NormalRadius,
				VelocityThreshold: p.VelocityThreshold,
			},
			MaxDelay:            p.MaxDelay(),
			MaxUpdatesPerSecond: p.MaxUpdatesPerSecond,
			StableThreshold:     p.StableThreshold(),
			MergeDelay:          p.MergeDelay(),
			MaxBatch:            p.MaxBatch,
			BorderDelay:         p.BorderDelay(),
			BorderBatch:         p.BorderBatch,
			RegionShift:         p.RegionShift,
			MaxForwardPerTick:   p.MaxForwardPerTick,
		},
		TargetQueueDepth:     c.Adaptive.TargetQueueDepth,
		TargetLatency:        c.Adaptive.TargetLatency(),
		Window:               c.Adaptive.Window(),
		RecommendInterval:    c.Adaptive.RecommendInterval(),
		ApplyRecommendations: c.Adaptive.Apply,
		BudgetPerTick:        c.Budget.PerTick,
		TickRate:             c.Simulation.TickRate,
		BatchSize:            c.Dispatch.BatchSize,
	}
}
