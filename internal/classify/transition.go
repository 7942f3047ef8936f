package classify

import (
	"github.com/Iron-Ham/ticksched/internal/shard"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// DefaultTransitionTicks is how long an item stays serial after leaving a
// transition.
const DefaultTransitionTicks = 39

// Transitions tracks per-identity countdowns for items that were recently
// inside a boundary transition.
type Transitions struct {
	counters *shard.Map[string, int]
	ticks    int
}

// NewTransitions creates a tracker that keeps an item serial for ticks
// observations after its last in-transition observation.
func NewTransitions(ticks int) *Transitions {
	return &Transitions{
		counters: shard.New[string, int](shard.DefaultShards),
		ticks:    ticks,
	}
}

// Observe evaluates the transition rule for it and reports whether it must
// run serially. An in-transition item resets its countdown; otherwise an
// existing countdown is decremented and removed once it reaches zero.
func (t *Transitions) Observe(it workitem.Item) bool {
	inTransition := it.InTransition != nil && it.InTransition()
	serial := false
	t.counters.Compute(it.ID, func(cur int, ok bool) (int, bool) {
		if inTransition {
			serial = true
			return t.ticks, t.ticks > 0
		}
		if !ok {
			return 0, false
		}
		serial = true
		cur--
		return cur, cur > 0
	})
	return serial
}

// Remaining returns the countdown for id, or 0 when none is active.
func (t *Transitions) Remaining(id string) int {
	n, _ := t.counters.Load(id)
	return n
}

// Active returns how many identities have a countdown running.
func (t *Transitions) Active() int {
	return t.counters.Len()
}

// Clear drops every countdown.
func (t *Transitions) Clear() {
	t.counters.Clear()
}
