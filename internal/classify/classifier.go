package classify

import (
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// Route is where an item runs.
type Route int

const (
	// Parallel routes the item to the worker pool.
	Parallel Route = iota
	// Serial runs the item on the tick goroutine.
	Serial
)

// String returns the route name.
func (r Route) String() string {
	if r == Serial {
		return "serial"
	}
	return "parallel"
}

// Reason names the rule that decided a route.
type Reason string

const (
	ReasonEligible     Reason = "eligible"
	ReasonAlwaysSerial Reason = "always_serial"
	ReasonDemoted      Reason = "demoted"
	ReasonKindRule     Reason = "kind_rule"
	ReasonTransition   Reason = "transition"
	ReasonLightLoad    Reason = "light_load"
)

// Decision is the result of classifying one item.
type Decision struct {
	Route  Route
	Reason Reason
}

// Config holds the classifier's tunables.
type Config struct {
	SerialKinds        []string
	TransitionTicks    int
	MinLoadForParallel int
}

// Classifier routes work items. It owns no state of its own: demotions,
// transition countdowns and load live in the collaborators passed to New so
// the host can reset them.
type Classifier struct {
	registry    *Registry
	transitions *Transitions
	gauge       *LoadGauge
	kinds       *KindRules
	minLoad     int
}

// New creates a Classifier over the given state.
func New(cfg Config, registry *Registry, transitions *Transitions, gauge *LoadGauge) (*Classifier, error) {
	kinds, err := CompileKindRules(cfg.SerialKinds)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		registry:    registry,
		transitions: transitions,
		gauge:       gauge,
		kinds:       kinds,
		minLoad:     cfg.MinLoadForParallel,
	}, nil
}

// Classify decides how it runs this tick. The only side effect is advancing
// the item's transition countdown, so each item should be classified once
// per tick.
func (c *Classifier) Classify(it workitem.Item) Decision {
	if it.Category == workitem.AlwaysSerial {
		return Decision{Route: Serial, Reason: ReasonAlwaysSerial}
	}

	// Countdowns advance even when another rule also fires, so they expire
	// on schedule.
	inTransition := it.Category == workitem.ConditionallySerial && c.transitions.Observe(it)

	switch {
	case c.registry.IsDemoted(it.ID):
		return Decision{Route: Serial, Reason: ReasonDemoted}
	case c.kinds.Match(it.Kind):
		return Decision{Route: Serial, Reason: ReasonKindRule}
	case inTransition:
		return Decision{Route: Serial, Reason: ReasonTransition}
	case c.gauge.Load() < c.minLoad:
		return Decision{Route: Serial, Reason: ReasonLightLoad}
	}
	return Decision{Route: Parallel, Reason: ReasonEligible}
}

// Registry returns the demotion registry the classifier reads.
func (c *Classifier) Registry() *Registry {
	return c.registry
}

// KindPatterns returns the compiled serial kind patterns.
func (c *Classifier) KindPatterns() []string {
	return c.kinds.Patterns()
}
