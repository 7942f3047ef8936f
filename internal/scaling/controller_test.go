package scaling

import (
	"testing"
	"time"

	"github.com/Iron-Ham/ticksched/internal/clock"
)

func newTestController() (*Controller, *clock.Manual) {
	mc := clock.NewManual(time.Unix(0, 0))
	return NewController(NewPolicy(), 10*time.Second, WithClock(mc)), mc
}

func TestController_Averages(t *testing.T) {
	c, _ := newTestController()

	if s := c.Snapshot(); s.Samples != 0 {
		t.Fatalf("empty controller Samples = %v", s.Samples)
	}

	c.RecordProcessing(100, 40*time.Millisecond)
	c.RecordProcessing(300, 60*time.Millisecond)

	s := c.Snapshot()
	if s.Samples != 2 || s.AvgQueueDepth != 200 || s.AvgLatency != 50*time.Millisecond {
		t.Errorf("Snapshot = %+v", s)
	}
}

func TestController_WindowDecay(t *testing.T) {
	c, mc := newTestController()
	c.RecordProcessing(100, 40*time.Millisecond)
	c.RecordProcessing(300, 60*time.Millisecond)

	mc.Advance(10 * time.Second)
	s := c.Snapshot()
	if s.Samples != 1 || s.AvgQueueDepth != 200 || s.AvgLatency != 50*time.Millisecond {
		t.Errorf("after one window: %+v, want half weight and same averages", s)
	}

	c.RecordProcessing(0, 0)
	s = c.Snapshot()
	if s.Samples != 2 || s.AvgQueueDepth != 100 || s.AvgLatency != 25*time.Millisecond {
		t.Errorf("after new sample: %+v", s)
	}

	mc.Advance(25 * time.Second)
	if s := c.Snapshot(); s.Samples != 0 {
		t.Errorf("after idle windows: %+v, want empty", s)
	}
}

func TestController_NegativeSamplesClamped(t *testing.T) {
	c, _ := newTestController()
	c.RecordProcessing(-5, -time.Second)
	s := c.Snapshot()
	if s.AvgQueueDepth != 0 || s.AvgLatency != 0 {
		t.Errorf("Snapshot = %+v", s)
	}
}

func TestController_RecommendationAndReset(t *testing.T) {
	c, _ := newTestController()
	for range 5 {
		c.RecordProcessing(500, 5*time.Millisecond)
	}

	rec := c.Recommendation(4)
	if rec.ThreadDelta != 1 || rec.BatchDelta != 4 {
		t.Errorf("Recommendation = %+v", rec)
	}

	c.Reset()
	if rec := c.Recommendation(4); !rec.IsZero() {
		t.Errorf("after Reset: %+v", rec)
	}
}

func TestNewController_Defaults(t *testing.T) {
	c := NewController(nil, 0)
	if c.Policy() == nil {
		t.Error("nil policy should be replaced with defaults")
	}
	if c.window != DefaultWindow {
		t.Errorf("window = %v, want %v", c.window, DefaultWindow)
	}
}
