package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative workers", func(c *Config) { c.Dispatch.Workers = -1 }, "dispatch.workers"},
		{"zero batch size", func(c *Config) { c.Dispatch.BatchSize = 0 }, "dispatch.batch_size"},
		{"bad glob", func(c *Config) { c.Classifier.SerialKinds = []string{"mob/[z"} }, "classifier.serial_kinds[0]"},
		{"empty glob", func(c *Config) { c.Classifier.SerialKinds = []string{" "} }, "classifier.serial_kinds[0]"},
		{"backoff inverted", func(c *Config) { c.Drain.MaxBackoffUs = 5 }, "drain.max_backoff_us"},
		{"radii not nested", func(c *Config) { c.Propagation.NormalRadius = 50 }, "propagation.normal_radius"},
		{"negative velocity", func(c *Config) { c.Propagation.VelocityThreshold = -1 }, "propagation.velocity_threshold"},
		{"zero debounce cap", func(c *Config) { c.Propagation.MaxUpdatesPerSecond = 0 }, "propagation.max_updates_per_second"},
		{"zero merge delay", func(c *Config) { c.Propagation.MergeDelayMs = 0 }, "propagation.merge_delay_ms"},
		{"region shift out of range", func(c *Config) { c.Propagation.RegionShift = 0 }, "propagation.region_shift"},
		{"zero target depth", func(c *Config) { c.Adaptive.TargetQueueDepth = 0 }, "adaptive.target_queue_depth"},
		{"negative budget", func(c *Config) { c.Budget.PerTick = -1 }, "budget.per_tick"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"huge log file", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"failure rate above one", func(c *Config) { c.Simulation.FailureRate = 2 }, "simulation.failure_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) == 0 {
				t.Fatal("expected a validation error")
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, ValidationErrors(errs))
			}
		})
	}
}

func TestValidate_AcceptsEdgeValues(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.Workers = 1 // raised to 2 by the pool, not rejected
	cfg.Budget.PerTick = 0   // unlimited
	cfg.Propagation.MaxForwardPerTick = 0
	cfg.Classifier.SerialKinds = []string{"projectile/*", "vehicle/{minecart,boat}*"}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", ValidationErrors(errs))
	}
}

func TestValidationErrors_Error(t *testing.T) {
	var none ValidationErrors
	if none.Error() != "" {
		t.Errorf("empty Error() = %q", none.Error())
	}

	one := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if one.Error() != "a: bad (got: 1)" {
		t.Errorf("single Error() = %q", one.Error())
	}

	two := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}, {Field: "b", Value: 2, Message: "worse"}}
	if !strings.HasPrefix(two.Error(), "2 validation errors:") {
		t.Errorf("multi Error() = %q", two.Error())
	}
}
