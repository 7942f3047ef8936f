// Package budget rations expensive on-demand requests to a fixed number per
// tick. Requests over the budget are deferred, one per requester, and
// re-attempted on later ticks in the order they were first deferred.
package budget

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/shard"
)

// Unlimited is returned by Remaining when the ledger has no per-tick cap.
const Unlimited = -1

// Status is the result of a budgeted request.
type Status int

const (
	// Accepted means the request fit in this tick's budget.
	Accepted Status = iota
	// Deferred means the request was stored for a later tick.
	Deferred
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

type deferred[P any] struct {
	seq     uint64
	payload P
	tick    uint64
}

// Ledger tracks the per-tick budget and the deferred requests. The budget
// counter is guarded by its own mutex; deferred requests live in a sharded
// map so requesters do not contend with each other.
type Ledger[P any] struct {
	mu        sync.Mutex
	perTick   int
	remaining int
	tick      uint64
	started   bool

	pending *shard.Map[string, deferred[P]]
	seq     atomic.Uint64
}

// NewLedger creates a Ledger allowing perTick requests per tick. perTick of
// 0 disables the cap; negative values are treated as 0.
func NewLedger[P any](perTick int) *Ledger[P] {
	perTick = max(perTick, 0)
	return &Ledger[P]{
		perTick:   perTick,
		remaining: perTick,
		pending:   shard.New[string, deferred[P]](shard.DefaultShards),
	}
}

// advance resets the budget when tick differs from the last tick seen.
// Callers hold l.mu.
func (l *Ledger[P]) advance(tick uint64) {
	if l.started && l.tick == tick {
		return
	}
	l.started = true
	l.tick = tick
	l.remaining = l.perTick
}

// TryAcquire takes one unit of tick's budget. It returns false when the
// budget is spent; the caller should then RecordDeferred.
func (l *Ledger[P]) TryAcquire(tick uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance(tick)
	if l.perTick == 0 {
		return true
	}
	if l.remaining <= 0 {
		return false
	}
	l.remaining--
	return true
}

// Remaining returns the budget left in tick, or Unlimited. A tick the
// ledger has not seen yet reports the full budget. Remaining never resets
// the counter itself.
func (l *Ledger[P]) Remaining(tick uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.perTick == 0 {
		return Unlimited
	}
	if !l.started || l.tick != tick {
		return l.perTick
	}
	return l.remaining
}

// PerTick returns the configured budget.
func (l *Ledger[P]) PerTick() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perTick
}

// SetPerTick changes the budget. It takes effect at the next tick.
func (l *Ledger[P]) SetPerTick(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perTick = max(n, 0)
}

// RecordDeferred stores payload for id, replacing any earlier deferred
// payload for the same requester. A replaced request keeps its place in the
// queue. It reports whether an earlier payload was replaced.
func (l *Ledger[P]) RecordDeferred(tick uint64, id string, payload P) (replaced bool) {
	l.pending.Compute(id, func(cur deferred[P], ok bool) (deferred[P], bool) {
		replaced = ok
		if !ok {
			cur.seq = l.seq.Add(1)
			cur.tick = tick
		}
		cur.payload = payload
		return cur, true
	})
	return replaced
}

// Request is TryAcquire followed, when the budget is spent, by RecordDeferred.
func (l *Ledger[P]) Request(tick uint64, id string, payload P) Status {
	if l.TryAcquire(tick) {
		return Accepted
	}
	l.RecordDeferred(tick, id, payload)
	return Deferred
}

// DrainDue re-attempts deferred requests in the order they were first
// deferred, taking one unit of tick's budget for each. fn receives the most
// recent payload for each requester taken. Requests that do not fit stay
// deferred. DrainDue returns the number of requests handed to fn.
func (l *Ledger[P]) DrainDue(tick uint64, fn func(id string, payload P)) int {
	type entry struct {
		id  string
		seq uint64
	}
	var order []entry
	l.pending.Range(func(id string, d deferred[P]) bool {
		order = append(order, entry{id: id, seq: d.seq})
		return true
	})
	slices.SortFunc(order, func(a, b entry) int { return cmp.Compare(a.seq, b.seq) })

	n := 0
	for _, e := range order {
		var (
			taken   deferred[P]
			present bool
		)
		l.pending.Compute(e.id, func(cur deferred[P], ok bool) (deferred[P], bool) {
			if !ok {
				return cur, false
			}
			if !l.TryAcquire(tick) {
				return cur, true
			}
			taken, present = cur, true
			return cur, false
		})
		if !present {
			if l.Remaining(tick) == 0 {
				break
			}
			continue
		}
		fn(e.id, taken.payload)
		n++
	}
	return n
}

// Pending returns the deferred payload for id.
func (l *Ledger[P]) Pending(id string) (P, error) {
	d, ok := l.pending.Load(id)
	if !ok {
		var zero P
		return zero, errors.Wrapf(errors.ErrUnknownRequester, "requester %q", id)
	}
	return d.payload, nil
}

// DeferredSince returns the tick at which id was first deferred.
func (l *Ledger[P]) DeferredSince(id string) (uint64, bool) {
	d, ok := l.pending.Load(id)
	return d.tick, ok
}

// Deferred returns the number of requesters with a deferred payload.
func (l *Ledger[P]) Deferred() int {
	return l.pending.Len()
}

// Forget drops id's deferred request, for a requester that went away.
func (l *Ledger[P]) Forget(id string) error {
	if !l.pending.Delete(id) {
		return errors.Wrapf(errors.ErrUnknownRequester, "requester %q", id)
	}
	return nil
}

// Clear drops every deferred request and restores the full budget.
func (l *Ledger[P]) Clear() {
	l.pending.Clear()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = false
	l.remaining = l.perTick
}
