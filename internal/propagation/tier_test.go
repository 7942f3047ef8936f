package propagation

import "testing"

func testPolicy() TierPolicy {
	return TierPolicy{CriticalRadius: 32, HighRadius: 64, NormalRadius: 128, VelocityThreshold: 0.5}
}

func TestTierPolicy_Classify(t *testing.T) {
	still := ReferencePoint{ID: "p1"}
	fast := ReferencePoint{ID: "p2", X: 10000, VX: 0.8}

	tests := []struct {
		name   string
		ev     Event
		points []ReferencePoint
		want   Tier
	}{
		{"loading is always critical", Event{Pos: Pos{X: 5000}, Loading: true}, nil, Critical},
		{"no reference points", Event{Pos: Pos{X: 1}}, nil, Low},
		{"inside critical band", Event{Pos: Pos{X: 32}}, []ReferencePoint{still}, Critical},
		{"inside high band", Event{Pos: Pos{X: 33}}, []ReferencePoint{still}, High},
		{"inside normal band", Event{Pos: Pos{Z: 128}}, []ReferencePoint{still}, Normal},
		{"outside all bands", Event{Pos: Pos{X: 200}}, []ReferencePoint{still}, Low},
		{"nearest point wins", Event{Pos: Pos{X: 9990}}, []ReferencePoint{still, {ID: "p3", X: 9980}}, Critical},
		{"fast point upgrades one step", Event{Pos: Pos{X: 100}}, []ReferencePoint{still, fast}, High},
		{"upgrade saturates at critical", Event{Pos: Pos{X: 0}}, []ReferencePoint{still, fast}, Critical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testPolicy().Classify(tt.ev, tt.points); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTierPolicy_MonotonicInDistance(t *testing.T) {
	p := testPolicy()
	points := []ReferencePoint{{ID: "p"}}
	prev := Critical
	for x := 0; x <= 300; x++ {
		got := p.Classify(Event{Pos: Pos{X: x}}, points)
		if got > prev {
			t.Fatalf("tier rose from %v to %v moving away at x=%d", prev, got, x)
		}
		prev = got
	}
}

func TestTier_String(t *testing.T) {
	for tier, want := range map[Tier]string{Low: "low", Normal: "normal", High: "high", Critical: "critical", Tier(9): "tier(9)"} {
		if got := tier.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestRegionAndBorder(t *testing.T) {
	tests := []struct {
		pos    Pos
		region Region
		border bool
	}{
		{Pos{X: 0, Z: 5}, Region{0, 0}, true},
		{Pos{X: 5, Z: 5}, Region{0, 0}, false},
		{Pos{X: 15, Z: 7}, Region{0, 0}, true},
		{Pos{X: 16, Z: 7}, Region{1, 0}, true},
		{Pos{X: 20, Z: 31}, Region{1, 1}, true},
		{Pos{X: -1, Z: 8}, Region{-1, 0}, true},
		{Pos{X: -8, Z: -8}, Region{-1, -1}, false},
	}
	for _, tt := range tests {
		if got := RegionOf(tt.pos, 4); got != tt.region {
			t.Errorf("RegionOf(%v) = %v, want %v", tt.pos, got, tt.region)
		}
		if got := OnBorder(tt.pos, 4); got != tt.border {
			t.Errorf("OnBorder(%v) = %v, want %v", tt.pos, got, tt.border)
		}
	}
}
