package scaling

import (
	"fmt"
	"time"
)

// Step sizes. Recommendations never move further than one step at a time.
const (
	ThreadStep = 1
	BatchStep  = 4
)

// Recommendation is an advisory adjustment for the host's configuration.
type Recommendation struct {
	// ThreadDelta is -1, 0 or +1.
	ThreadDelta int

	// BatchDelta is -4, 0 or +4.
	BatchDelta int

	// Reason is a human-readable explanation.
	Reason string

	// Snapshot is the aggregate the recommendation was computed from.
	Snapshot Snapshot
}

// IsZero reports whether the recommendation asks for no change.
func (r Recommendation) IsZero() bool {
	return r.ThreadDelta == 0 && r.BatchDelta == 0
}

// String returns a compact form such as "threads +1, batch -4".
func (r Recommendation) String() string {
	return fmt.Sprintf("threads %+d, batch %+d", r.ThreadDelta, r.BatchDelta)
}

// Snapshot is the windowed average of recorded samples.
type Snapshot struct {
	AvgQueueDepth float64
	AvgLatency    time.Duration
	// Samples is the decayed sample weight; zero means nothing was recorded.
	Samples float64
}
