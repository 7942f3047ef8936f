package propagation

import (
	"fmt"
	"math"
)

// Tier is an event's scheduling priority. Higher values are more urgent.
type Tier int

const (
	Low Tier = iota
	Normal
	High
	Critical
)

// Tiers lists every tier from most to least urgent.
var Tiers = [...]Tier{Critical, High, Normal, Low}

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Upgrade returns the next more urgent tier. Critical stays Critical.
func (t Tier) Upgrade() Tier {
	if t >= Critical {
		return Critical
	}
	return t + 1
}

// Pos is a block coordinate.
type Pos struct {
	X, Y, Z int
}

// Region identifies the column of blocks an event is merged under.
type Region struct {
	X, Z int
}

// String renders the region as "x:z".
func (r Region) String() string {
	return fmt.Sprintf("%d:%d", r.X, r.Z)
}

// RegionOf returns the region containing p for regions of 1<<shift blocks.
func RegionOf(p Pos, shift int) Region {
	return Region{X: p.X >> shift, Z: p.Z >> shift}
}

// OnBorder reports whether p lies on the outer ring of its region.
func OnBorder(p Pos, shift int) bool {
	mask := 1<<shift - 1
	x, z := p.X&mask, p.Z&mask
	return x == 0 || x == mask || z == 0 || z == mask
}

// ReferencePoint is an observer whose proximity raises event priority,
// such as a player. Velocity is in blocks per tick.
type ReferencePoint struct {
	ID         string
	X, Y, Z    float64
	VX, VY, VZ float64
}

// Speed returns the magnitude of the point's velocity.
func (r ReferencePoint) Speed() float64 {
	return math.Sqrt(r.VX*r.VX + r.VY*r.VY + r.VZ*r.VZ)
}

func (r ReferencePoint) distanceSq(p Pos) float64 {
	dx := r.X - float64(p.X)
	dy := r.Y - float64(p.Y)
	dz := r.Z - float64(p.Z)
	return dx*dx + dy*dy + dz*dz
}

// TierPolicy assigns tiers from distance bands.
type TierPolicy struct {
	CriticalRadius    float64
	HighRadius        float64
	NormalRadius      float64
	VelocityThreshold float64
}

// Classify returns the tier for ev given the current reference points.
// With no reference points every non-loading event is Low.
func (tp TierPolicy) Classify(ev Event, points []ReferencePoint) Tier {
	if ev.Loading {
		return Critical
	}
	if len(points) == 0 {
		return Low
	}

	nearest := math.MaxFloat64
	fast := false
	for _, rp := range points {
		nearest = min(nearest, rp.distanceSq(ev.Pos))
		if rp.Speed() > tp.VelocityThreshold {
			fast = true
		}
	}

	tier := tp.band(math.Sqrt(nearest))
	if fast {
		tier = tier.Upgrade()
	}
	return tier
}

func (tp TierPolicy) band(d float64) Tier {
	switch {
	case d <= tp.CriticalRadius:
		return Critical
	case d <= tp.HighRadius:
		return High
	case d <= tp.NormalRadius:
		return Normal
	default:
		return Low
	}
}
