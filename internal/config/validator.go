package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "propagation.high_radius")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found. A dispatch.workers value of 1 is not an error: the pool
// raises it to 2.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDispatch()...)
	errors = append(errors, c.validateClassifier()...)
	errors = append(errors, c.validateDrain()...)
	errors = append(errors, c.validatePropagation()...)
	errors = append(errors, c.validateAdaptive()...)
	errors = append(errors, c.validateBudget()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateSimulation()...)

	return errors
}

func nonNegative(field string, v int) []ValidationError {
	if v < 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
	}
	return nil
}

func positive(field string, v int) []ValidationError {
	if v <= 0 {
		return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
	}
	return nil
}

func (c *Config) validateDispatch() []ValidationError {
	var errors []ValidationError
	errors = append(errors, nonNegative("dispatch.workers", c.Dispatch.Workers)...)
	errors = append(errors, nonNegative("dispatch.queue_capacity", c.Dispatch.QueueCapacity)...)
	errors = append(errors, nonNegative("dispatch.min_load_for_parallel", c.Dispatch.MinLoadForParallel)...)
	errors = append(errors, positive("dispatch.batch_size", c.Dispatch.BatchSize)...)
	errors = append(errors, nonNegative("dispatch.shutdown_timeout_ms", c.Dispatch.ShutdownTimeoutMs)...)
	return errors
}

func (c *Config) validateClassifier() []ValidationError {
	var errors []ValidationError
	for i, pattern := range c.Classifier.SerialKinds {
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("classifier.serial_kinds[%d]", i),
				Value:   pattern,
				Message: "must not be empty",
			})
			continue
		}
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("classifier.serial_kinds[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}
	errors = append(errors, nonNegative("classifier.transition_ticks", c.Classifier.TransitionTicks)...)
	return errors
}

func (c *Config) validateDrain() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("drain.initial_backoff_us", c.Drain.InitialBackoffUs)...)
	errors = append(errors, positive("drain.max_backoff_us", c.Drain.MaxBackoffUs)...)
	if c.Drain.InitialBackoffUs > 0 && c.Drain.MaxBackoffUs < c.Drain.InitialBackoffUs {
		errors = append(errors, ValidationError{
			Field:   "drain.max_backoff_us",
			Value:   c.Drain.MaxBackoffUs,
			Message: fmt.Sprintf("must be at least drain.initial_backoff_us (%d)", c.Drain.InitialBackoffUs),
		})
	}
	return errors
}

func (c *Config) validatePropagation() []ValidationError {
	var errors []ValidationError
	p := c.Propagation

	if p.CriticalRadius < 0 {
		errors = append(errors, ValidationError{Field: "propagation.critical_radius", Value: p.CriticalRadius, Message: "must be non-negative"})
	}
	// Tier radii must nest, otherwise a closer event could land in a lower tier.
	if p.HighRadius < p.CriticalRadius {
		errors = append(errors, ValidationError{
			Field:   "propagation.high_radius",
			Value:   p.HighRadius,
			Message: fmt.Sprintf("must be at least propagation.critical_radius (%v)", p.CriticalRadius),
		})
	}
	if p.NormalRadius < p.HighRadius {
		errors = append(errors, ValidationError{
			Field:   "propagation.normal_radius",
			Value:   p.NormalRadius,
			Message: fmt.Sprintf("must be at least propagation.high_radius (%v)", p.HighRadius),
		})
	}
	if p.VelocityThreshold < 0 {
		errors = append(errors, ValidationError{Field: "propagation.velocity_threshold", Value: p.VelocityThreshold, Message: "must be non-negative"})
	}

	errors = append(errors, nonNegative("propagation.max_delay_ms", p.MaxDelayMs)...)
	errors = append(errors, positive("propagation.max_updates_per_second", p.MaxUpdatesPerSecond)...)
	errors = append(errors, nonNegative("propagation.stable_threshold_ms", p.StableThresholdMs)...)
	errors = append(errors, positive("propagation.merge_delay_ms", p.MergeDelayMs)...)
	errors = append(errors, positive("propagation.max_batch", p.MaxBatch)...)
	errors = append(errors, positive("propagation.border_delay_ms", p.BorderDelayMs)...)
	errors = append(errors, positive("propagation.border_batch", p.BorderBatch)...)
	errors = append(errors, nonNegative("propagation.max_forward_per_tick", p.MaxForwardPerTick)...)

	if p.RegionShift < 1 || p.RegionShift > 16 {
		errors = append(errors, ValidationError{Field: "propagation.region_shift", Value: p.RegionShift, Message: "must be between 1 and 16"})
	}
	return errors
}

func (c *Config) validateAdaptive() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("adaptive.target_queue_depth", c.Adaptive.TargetQueueDepth)...)
	errors = append(errors, positive("adaptive.target_latency_ms", c.Adaptive.TargetLatencyMs)...)
	errors = append(errors, positive("adaptive.window_ms", c.Adaptive.WindowMs)...)
	errors = append(errors, positive("adaptive.recommend_interval_ms", c.Adaptive.RecommendIntervalMs)...)
	return errors
}

func (c *Config) validateBudget() []ValidationError {
	return nonNegative("budget.per_tick", c.Budget.PerTick)
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	errors = append(errors, positive("logging.max_size_mb", c.Logging.MaxSizeMB)...)

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	errors = append(errors, nonNegative("logging.max_backups", c.Logging.MaxBackups)...)
	return errors
}

func (c *Config) validateSimulation() []ValidationError {
	var errors []ValidationError
	s := c.Simulation
	errors = append(errors, positive("simulation.tick_rate", s.TickRate)...)
	errors = append(errors, nonNegative("simulation.ticks", s.Ticks)...)
	errors = append(errors, nonNegative("simulation.entities", s.Entities)...)
	errors = append(errors, nonNegative("simulation.reference_points", s.ReferencePoints)...)
	errors = append(errors, nonNegative("simulation.light_events_per_tick", s.LightEventsPerTick)...)
	errors = append(errors, nonNegative("simulation.path_requests_per_tick", s.PathRequestsPerTick)...)
	errors = append(errors, nonNegative("simulation.work_micros", s.WorkMicros)...)
	if s.FailureRate < 0 || s.FailureRate > 1 {
		errors = append(errors, ValidationError{Field: "simulation.failure_rate", Value: s.FailureRate, Message: "must be between 0 and 1"})
	}
	return errors
}
