package classify

import (
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
	"github.com/Iron-Ham/ticksched/internal/shard"
)

// Demotion records why and when an identity was demoted.
type Demotion struct {
	Reason string
	At     time.Time
}

// Registry is the set of identities that must never run in parallel again
// during the session.
type Registry struct {
	entries *shard.Map[string, Demotion]
	clock   clock.Clock
}

// NewRegistry creates an empty Registry. A nil clock uses the system clock.
func NewRegistry(c clock.Clock) *Registry {
	return &Registry{
		entries: shard.New[string, Demotion](shard.DefaultShards),
		clock:   clock.OrReal(c),
	}
}

// Demote adds id to the registry. It returns true if id was not already
// demoted; the first reason recorded is kept.
func (r *Registry) Demote(id, reason string) bool {
	added := false
	r.entries.Compute(id, func(cur Demotion, ok bool) (Demotion, bool) {
		if ok {
			return cur, true
		}
		added = true
		return Demotion{Reason: reason, At: r.clock.Now()}, true
	})
	return added
}

// IsDemoted reports whether id is in the registry.
func (r *Registry) IsDemoted(id string) bool {
	_, ok := r.entries.Load(id)
	return ok
}

// Lookup returns the demotion record for id.
func (r *Registry) Lookup(id string) (Demotion, bool) {
	return r.entries.Load(id)
}

// Len returns the number of demoted identities.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Snapshot returns a copy of all demotion records.
func (r *Registry) Snapshot() map[string]Demotion {
	out := make(map[string]Demotion, r.entries.Len())
	r.entries.Range(func(id string, d Demotion) bool {
		out[id] = d
		return true
	})
	return out
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.entries.Clear()
}
