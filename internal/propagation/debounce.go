package propagation

import (
	"time"

	"github.com/Iron-Ham/ticksched/internal/shard"
)

// debounceWindow is the length of the per-coordinate counting window.
const debounceWindow = time.Second

type debounceEntry struct {
	lastUpdate  time.Time
	windowStart time.Time
	count       int
}

// Debouncer drops updates to coordinates that change too often.
type Debouncer struct {
	entries *shard.Map[Pos, debounceEntry]
	maxPer  int
	stable  time.Duration
}

// NewDebouncer allows maxPerSecond updates per coordinate per window. A
// coordinate quiet for longer than stable starts a fresh window.
func NewDebouncer(maxPerSecond int, stable time.Duration) *Debouncer {
	return &Debouncer{
		entries: shard.New[Pos, debounceEntry](shard.DefaultShards),
		maxPer:  maxPerSecond,
		stable:  stable,
	}
}

// Allow records an update to p at now and reports whether it may proceed.
// Dropped updates still count as activity, so a coordinate under continuous
// load never looks stable.
func (d *Debouncer) Allow(p Pos, now time.Time) bool {
	allowed := true
	d.entries.Compute(p, func(e debounceEntry, ok bool) (debounceEntry, bool) {
		if !ok || now.Sub(e.lastUpdate) > d.stable || now.Sub(e.windowStart) >= debounceWindow {
			e.windowStart = now
			e.count = 0
		}
		e.lastUpdate = now
		if e.count >= d.maxPer {
			allowed = false
			return e, true
		}
		e.count++
		return e, true
	})
	return allowed
}

// Sweep removes entries idle for longer than the window plus the stability
// threshold and returns how many were removed.
func (d *Debouncer) Sweep(now time.Time) int {
	idle := debounceWindow + d.stable
	return d.entries.DeleteIf(func(_ Pos, e debounceEntry) bool {
		return now.Sub(e.lastUpdate) > idle
	})
}

// EvictRegion removes entries inside region.
func (d *Debouncer) EvictRegion(region Region, shift int) int {
	return d.entries.DeleteIf(func(p Pos, _ debounceEntry) bool {
		return RegionOf(p, shift) == region
	})
}

// Len returns the number of tracked coordinates.
func (d *Debouncer) Len() int {
	return d.entries.Len()
}

// Clear drops all entries.
func (d *Debouncer) Clear() {
	d.entries.Clear()
}
