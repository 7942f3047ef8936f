package propagation

import (
	"time"

	"github.com/Iron-Ham/ticksched/internal/shard"
)

// Event is one spatial update. Value and Payload are opaque to the
// scheduler and handed back to the host's propagator.
type Event struct {
	Pos     Pos
	Loading bool
	Value   int
	Payload any
}

// Batch is a group of combined events from one region, forwarded together.
type Batch struct {
	Tier   Tier
	Region Region
	Border bool
	Events []Event
	// Oldest is when the earliest event in the batch was received.
	Oldest time.Time
	// Ready is when the batch entered the ready queue.
	Ready time.Time
}

// Combiner reduces buffered events to an equivalent, usually smaller, set.
// It receives events in arrival order.
type Combiner func(events []Event) []Event

// LastWriteWins keeps the most recent event per coordinate, in order of first
// appearance. A coordinate stays loading-triggered if any of its events was.
func LastWriteWins(events []Event) []Event {
	if len(events) < 2 {
		return events
	}
	index := make(map[Pos]int, len(events))
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		i, seen := index[ev.Pos]
		if !seen {
			index[ev.Pos] = len(out)
			out = append(out, ev)
			continue
		}
		loading := out[i].Loading || ev.Loading
		out[i] = ev
		out[i].Loading = loading
	}
	return out
}

type queued struct {
	ev   Event
	tier Tier
	at   time.Time
}

// mergeBuffer holds pending events per region. Appends to different regions
// do not contend.
type mergeBuffer struct {
	pending  *shard.Map[Region, []queued]
	maxBatch int
	border   bool
}

func newMergeBuffer(maxBatch int, border bool) *mergeBuffer {
	return &mergeBuffer{
		pending:  shard.New[Region, []queued](shard.DefaultShards),
		maxBatch: maxBatch,
		border:   border,
	}
}

// add appends q under region. When the region's buffer reaches the maximum
// batch size the buffer is detached and returned for an immediate flush.
func (b *mergeBuffer) add(region Region, q queued) (full []queued) {
	b.pending.Compute(region, func(cur []queued, _ bool) ([]queued, bool) {
		cur = append(cur, q)
		if len(cur) >= b.maxBatch {
			full = cur
			return nil, false
		}
		return cur, true
	})
	return full
}

type regionEvents struct {
	region Region
	events []queued
}

// takeAll detaches every non-empty buffer.
func (b *mergeBuffer) takeAll() []regionEvents {
	var out []regionEvents
	b.pending.DeleteIf(func(r Region, evs []queued) bool {
		out = append(out, regionEvents{region: r, events: evs})
		return true
	})
	return out
}

func (b *mergeBuffer) evict(region Region) bool {
	return b.pending.Delete(region)
}

// size returns the number of buffered events.
func (b *mergeBuffer) size() int {
	n := 0
	b.pending.Range(func(_ Region, evs []queued) bool {
		n += len(evs)
		return true
	})
	return n
}

func (b *mergeBuffer) clear() {
	b.pending.Clear()
}
