package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/Iron-Ham/ticksched/internal/propagation"
	"github.com/Iron-Ham/ticksched/internal/workitem"
)

// worldSize is the edge length of the square the synthetic world lives in.
const worldSize = 4096

type kindSpec struct {
	kind     string
	category workitem.Category
	weight   int
}

// kinds is the entity mix: mostly independent mobs, a few kinds the host
// marks serial, and kinds the default config matches with serial globs.
var kinds = []kindSpec{
	{"mob/cow", workitem.ParallelEligible, 40},
	{"mob/zombie", workitem.ConditionallySerial, 25},
	{"item/drop", workitem.ParallelEligible, 15},
	{"projectile/arrow", workitem.ParallelEligible, 10},
	{"vehicle/minecart", workitem.ParallelEligible, 5},
	{"block/redstone", workitem.AlwaysSerial, 5},
}

type entity struct {
	x, z   float64
	vx, vz float64
	portal bool
}

type group struct {
	spec    kindSpec
	members []int
}

// world is the host state. Only the tick goroutine touches it between
// ticks; during a tick each entity belongs to exactly one chunk.
type world struct {
	rng      *rand.Rand
	entities []entity
	groups   []group
	points   []propagation.ReferencePoint
}

func newWorld(seed int64, entities, points int) *world {
	w := &world{rng: rand.New(rand.NewPCG(uint64(seed), 0x7469636b))}

	total := 0
	for _, k := range kinds {
		total += k.weight
	}
	w.groups = make([]group, len(kinds))
	for i, k := range kinds {
		w.groups[i].spec = k
	}
	w.entities = make([]entity, entities)
	for i := range w.entities {
		w.entities[i] = entity{
			x:  w.rng.Float64() * worldSize,
			z:  w.rng.Float64() * worldSize,
			vx: w.rng.NormFloat64() * 0.2,
			vz: w.rng.NormFloat64() * 0.2,
		}
		pick := w.rng.IntN(total)
		for g, k := range kinds {
			if pick < k.weight {
				w.groups[g].members = append(w.groups[g].members, i)
				break
			}
			pick -= k.weight
		}
	}

	w.points = make([]propagation.ReferencePoint, points)
	for i := range w.points {
		w.points[i] = propagation.ReferencePoint{
			ID: fmt.Sprintf("player-%d", i),
			X:  w.rng.Float64() * worldSize,
			Y:  64,
			Z:  w.rng.Float64() * worldSize,
		}
	}
	return w
}

// movePoints advances every reference point. Now and then a point sprints,
// which pushes nearby propagation events up a tier.
func (w *world) movePoints() []propagation.ReferencePoint {
	for i := range w.points {
		p := &w.points[i]
		speed := 0.2
		if w.rng.IntN(20) == 0 {
			speed = 1.0
		}
		angle := w.rng.Float64() * 2 * math.Pi
		p.VX = math.Cos(angle) * speed
		p.VZ = math.Sin(angle) * speed
		p.X = clamp(p.X+p.VX*8, 0, worldSize)
		p.Z = clamp(p.Z+p.VZ*8, 0, worldSize)
	}
	return append([]propagation.ReferencePoint(nil), w.points...)
}

// rollPortals puts a small share of conditionally serial entities into a
// boundary transition for this tick.
func (w *world) rollPortals() {
	for _, g := range w.groups {
		if g.spec.category != workitem.ConditionallySerial {
			continue
		}
		for _, i := range g.members {
			w.entities[i].portal = w.rng.IntN(500) == 0
		}
	}
}

type chunk struct {
	id      string
	spec    kindSpec
	members []int
	fail    bool
}

// chunks groups each kind's entities into chunks of size. Chunk identities
// are stable for a given size, so demotions stick to the same entities.
func (w *world) chunks(size int, failureRate float64) []chunk {
	var out []chunk
	for _, g := range w.groups {
		for start := 0; start < len(g.members); start += size {
			end := min(start+size, len(g.members))
			out = append(out, chunk{
				id:      fmt.Sprintf("%s#%d", g.spec.kind, start/size),
				spec:    g.spec,
				members: g.members[start:end],
				fail:    failureRate > 0 && w.rng.Float64() < failureRate,
			})
		}
	}
	return out
}

// step moves the chunk's entities. It only touches entities of this chunk.
func (w *world) step(members []int, work time.Duration) {
	for _, i := range members {
		e := &w.entities[i]
		e.x += e.vx
		e.z += e.vz
		if e.x < 0 || e.x > worldSize {
			e.vx = -e.vx
			e.x = clamp(e.x, 0, worldSize)
		}
		if e.z < 0 || e.z > worldSize {
			e.vz = -e.vz
			e.z = clamp(e.z, 0, worldSize)
		}
		spin(work)
	}
}

func (w *world) inTransition(members []int) bool {
	for _, i := range members {
		if w.entities[i].portal {
			return true
		}
	}
	return false
}

// nearest returns the distance from (x, z) to the closest reference point.
func nearest(points []propagation.ReferencePoint, x, z float64) float64 {
	best := math.Inf(1)
	for _, p := range points {
		best = math.Min(best, math.Hypot(p.X-x, p.Z-z))
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// spin busy-waits for d to stand in for CPU-bound simulation work.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
