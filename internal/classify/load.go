package classify

import "sync/atomic"

// LoadGauge estimates the current tick's parallel load as the larger of the
// previous tick's unit count and the units submitted so far this tick. Using
// the previous tick keeps the first items of a busy tick from being routed
// serially just because they arrived early.
type LoadGauge struct {
	prev atomic.Int64
	cur  atomic.Int64
}

// Add records n submitted units and returns the updated load.
func (g *LoadGauge) Add(n int) int {
	cur := g.cur.Add(int64(n))
	return int(max(cur, g.prev.Load()))
}

// Load returns the current load estimate.
func (g *LoadGauge) Load() int {
	return int(max(g.cur.Load(), g.prev.Load()))
}

// Roll closes the current tick: its count becomes the previous tick's and
// the current count restarts at zero. It returns the closed tick's count.
func (g *LoadGauge) Roll() int {
	cur := g.cur.Swap(0)
	g.prev.Store(cur)
	return int(cur)
}

// Reset zeroes both counts.
func (g *LoadGauge) Reset() {
	g.cur.Store(0)
	g.prev.Store(0)
}
