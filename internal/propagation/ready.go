package propagation

import (
	"sync"
	"time"
)

type tierQueue struct {
	mu      sync.Mutex
	batches []Batch
}

func (q *tierQueue) push(b Batch) {
	q.mu.Lock()
	q.batches = append(q.batches, b)
	q.mu.Unlock()
}

func (q *tierQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// readyQueue holds flushed batches per tier, FIFO within a tier.
type readyQueue struct {
	tiers [Critical + 1]tierQueue
}

func (r *readyQueue) push(b Batch) {
	r.tiers[b.Tier].push(b)
}

// pump removes up to limit batches, most urgent tier first (limit 0 means no
// cap). Non-Critical batches that have waited at least maxDelay are taken
// even past the cap.
func (r *readyQueue) pump(now time.Time, limit int, maxDelay time.Duration) []Batch {
	var out []Batch
	for _, tier := range Tiers {
		q := &r.tiers[tier]
		q.mu.Lock()
		n := 0
		for n < len(q.batches) && (limit == 0 || len(out) < limit) {
			out = append(out, q.batches[n])
			n++
		}
		if tier != Critical {
			for n < len(q.batches) && now.Sub(q.batches[n].Ready) >= maxDelay {
				out = append(out, q.batches[n])
				n++
			}
		}
		q.batches = append(q.batches[:0], q.batches[n:]...)
		q.mu.Unlock()
	}
	return out
}

// depth returns the number of waiting batches per tier.
func (r *readyQueue) depth() map[Tier]int {
	out := make(map[Tier]int, len(r.tiers))
	for _, tier := range Tiers {
		out[tier] = r.tiers[tier].len()
	}
	return out
}

func (r *readyQueue) clear() {
	for i := range r.tiers {
		q := &r.tiers[i]
		q.mu.Lock()
		q.batches = nil
		q.mu.Unlock()
	}
}
