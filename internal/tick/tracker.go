// Package tick measures the host's tick cadence: milliseconds per tick,
// ticks per second against the target rate, and ticks lost to overruns.
package tick

import (
	"math"
	"sync"
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
)

// Defaults for a 20 TPS host.
const (
	DefaultRate  = 20
	HistoryLimit = 40
)

// Tracker records tick start times. It is safe for concurrent use, though
// OnTick is normally called only from the host's tick goroutine.
type Tracker struct {
	clock clock.Clock
	rate  int
	full  time.Duration

	mu          sync.RWMutex
	last        time.Time
	current     time.Time
	ticks       uint64
	missed      float64
	totalMissed float64
	history     [HistoryLimit]float64
	historyLen  int
	historyNext int
}

// NewTracker creates a Tracker for a host running rate ticks per second.
// A non-positive rate uses DefaultRate.
func NewTracker(rate int, c clock.Clock) *Tracker {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Tracker{
		clock: clock.OrReal(c),
		rate:  rate,
		full:  time.Second / time.Duration(rate),
	}
}

// Rate returns the target ticks per second.
func (t *Tracker) Rate() int { return t.rate }

// Interval returns the target tick duration.
func (t *Tracker) Interval() time.Duration { return t.full }

// OnTick records the start of a tick.
func (t *Tracker) OnTick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.current.IsZero() {
		t.last = t.current
	}
	t.current = t.clock.Now()
	t.ticks++

	t.addHistory(t.tpsLocked())

	// Whole missed ticks are reported for one tick, then discarded.
	t.missed -= math.Floor(t.missed)
	if !t.last.IsZero() {
		if mspt := t.msptLocked(); mspt > t.full {
			lost := float64(mspt)/float64(t.full) - 1
			t.missed += lost
			t.totalMissed += lost
		}
	}
}

func (t *Tracker) addHistory(tps float64) {
	t.history[t.historyNext] = tps
	t.historyNext = (t.historyNext + 1) % HistoryLimit
	if t.historyLen < HistoryLimit {
		t.historyLen++
	}
}

func (t *Tracker) msptLocked() time.Duration {
	if t.last.IsZero() {
		return t.full
	}
	d := t.current.Sub(t.last)
	if d <= 0 {
		return t.full
	}
	return d
}

func (t *Tracker) tpsLocked() float64 {
	if t.last.IsZero() {
		return float64(t.rate)
	}
	tps := float64(time.Second) / float64(t.msptLocked())
	return math.Min(tps, float64(t.rate))
}

// MSPT returns the time between the last two tick starts, or the target
// interval before the second tick.
func (t *Tracker) MSPT() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.msptLocked()
}

// TPS returns the current ticks per second, capped at the target rate.
func (t *Tracker) TPS() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tpsLocked()
}

// AverageTPS returns the mean TPS over the last HistoryLimit ticks.
func (t *Tracker) AverageTPS() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.historyLen == 0 {
		return float64(t.rate)
	}
	sum := 0.0
	for i := range t.historyLen {
		sum += t.history[i]
	}
	return sum / float64(t.historyLen)
}

// MostAccurateTPS returns the lower of TPS and AverageTPS.
func (t *Tracker) MostAccurateTPS() float64 {
	return math.Min(t.TPS(), t.AverageTPS())
}

// MissedTicks returns the whole ticks lost to overruns that have not yet
// been reported. The value is valid until the next OnTick.
func (t *Tracker) MissedTicks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(math.Floor(t.missed))
}

// TotalMissed returns every tick lost since the last Reset, fractions included.
func (t *Tracker) TotalMissed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalMissed
}

// Ticks returns the number of OnTick calls.
func (t *Tracker) Ticks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}

// Reset clears history and missed tick accounting.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	t.current = time.Time{}
	t.ticks = 0
	t.missed = 0
	t.totalMissed = 0
	t.historyLen = 0
	t.historyNext = 0
}
