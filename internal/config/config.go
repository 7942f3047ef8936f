package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// TICKSCHED_DISPATCH_WORKERS=8.
const EnvPrefix = "TICKSCHED"

// Config represents the complete scheduler configuration
type Config struct {
	Dispatch    DispatchConfig    `mapstructure:"dispatch" yaml:"dispatch"`
	Classifier  ClassifierConfig  `mapstructure:"classifier" yaml:"classifier"`
	Drain       DrainConfig       `mapstructure:"drain" yaml:"drain"`
	Propagation PropagationConfig `mapstructure:"propagation" yaml:"propagation"`
	Adaptive    AdaptiveConfig    `mapstructure:"adaptive" yaml:"adaptive"`
	Budget      BudgetConfig      `mapstructure:"budget" yaml:"budget"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Simulation  SimulationConfig  `mapstructure:"simulation" yaml:"simulation"`
}

// DispatchConfig controls the worker pool
type DispatchConfig struct {
	// Workers is the pool size. 0 means max(2, NumCPU/4); values below 2
	// are raised to 2.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// QueueCapacity bounds the pool's pending queue. When full, submitters run
	// work themselves. 0 means 64 slots per worker.
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	// MinLoadForParallel routes everything serially while fewer units than
	// this are submitted per tick.
	MinLoadForParallel int `mapstructure:"min_load_for_parallel" yaml:"min_load_for_parallel"`
	// BatchSize is how many host entities are grouped into a single work item.
	// The adaptive controller recommends changes to it.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// ShutdownTimeoutMs bounds how long Close waits for busy workers.
	ShutdownTimeoutMs int `mapstructure:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"`
}

// ClassifierConfig controls the serial/parallel decision
type ClassifierConfig struct {
	// SerialKinds are glob patterns (e.g. "projectile/*"); items whose kind
	// matches any of them always run serially.
	SerialKinds []string `mapstructure:"serial_kinds" yaml:"serial_kinds"`
	// TransitionTicks is how many ticks an item stays serial after it was
	// seen inside a cross-boundary transition.
	TransitionTicks int `mapstructure:"transition_ticks" yaml:"transition_ticks"`
}

// DrainConfig controls the end-of-tick barrier's idle backoff
type DrainConfig struct {
	InitialBackoffUs int `mapstructure:"initial_backoff_us" yaml:"initial_backoff_us"`
	MaxBackoffUs     int `mapstructure:"max_backoff_us" yaml:"max_backoff_us"`
}

// PropagationConfig controls tiering, debounce and merging of propagation events
type PropagationConfig struct {
	CriticalRadius float64 `mapstructure:"critical_radius" yaml:"critical_radius"`
	HighRadius     float64 `mapstructure:"high_radius" yaml:"high_radius"`
	NormalRadius   float64 `mapstructure:"normal_radius" yaml:"normal_radius"`
	// VelocityThreshold is the speed (blocks per tick) above which the
	// nearest reference point upgrades an event by one tier.
	VelocityThreshold float64 `mapstructure:"velocity_threshold" yaml:"velocity_threshold"`
	// MaxDelayMs is the longest a non-Critical batch may wait in the ready
	// queue before it is forwarded regardless of the per-tick cap.
	MaxDelayMs int `mapstructure:"max_delay_ms" yaml:"max_delay_ms"`

	MaxUpdatesPerSecond int `mapstructure:"max_updates_per_second" yaml:"max_updates_per_second"`
	StableThresholdMs   int `mapstructure:"stable_threshold_ms" yaml:"stable_threshold_ms"`

	MergeDelayMs  int `mapstructure:"merge_delay_ms" yaml:"merge_delay_ms"`
	MaxBatch      int `mapstructure:"max_batch" yaml:"max_batch"`
	BorderDelayMs int `mapstructure:"border_delay_ms" yaml:"border_delay_ms"`
	BorderBatch   int `mapstructure:"border_batch" yaml:"border_batch"`
	// RegionShift is log2 of the region edge length used as the merge key.
	RegionShift int `mapstructure:"region_shift" yaml:"region_shift"`
	// MaxForwardPerTick caps ready batches forwarded per tick. 0 means unlimited.
	MaxForwardPerTick int `mapstructure:"max_forward_per_tick" yaml:"max_forward_per_tick"`
}

// AdaptiveConfig controls the feedback controller
type AdaptiveConfig struct {
	TargetQueueDepth int `mapstructure:"target_queue_depth" yaml:"target_queue_depth"`
	TargetLatencyMs  int `mapstructure:"target_latency_ms" yaml:"target_latency_ms"`
	// WindowMs is the monitoring window; older samples decay.
	WindowMs int `mapstructure:"window_ms" yaml:"window_ms"`
	// RecommendIntervalMs is how often the monitor publishes a recommendation.
	RecommendIntervalMs int `mapstructure:"recommend_interval_ms" yaml:"recommend_interval_ms"`
	// Apply lets the host act on recommendations automatically.
	Apply bool `mapstructure:"apply" yaml:"apply"`
}

// BudgetConfig controls the per-tick budget for expensive requests
type BudgetConfig struct {
	// PerTick is the number of budgeted requests admitted per tick.
	// 0 disables budgeting.
	PerTick int `mapstructure:"per_tick" yaml:"per_tick"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where scheduler.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum size of a log file before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// SimulationConfig drives the synthetic host used by `ticksched simulate`
type SimulationConfig struct {
	TickRate            int     `mapstructure:"tick_rate" yaml:"tick_rate"`
	Ticks               int     `mapstructure:"ticks" yaml:"ticks"`
	Entities            int     `mapstructure:"entities" yaml:"entities"`
	ReferencePoints     int     `mapstructure:"reference_points" yaml:"reference_points"`
	LightEventsPerTick  int     `mapstructure:"light_events_per_tick" yaml:"light_events_per_tick"`
	PathRequestsPerTick int     `mapstructure:"path_requests_per_tick" yaml:"path_requests_per_tick"`
	FailureRate         float64 `mapstructure:"failure_rate" yaml:"failure_rate"`
	WorkMicros          int     `mapstructure:"work_micros" yaml:"work_micros"`
	Seed                int64   `mapstructure:"seed" yaml:"seed"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			Workers:            0, // auto
			QueueCapacity:      0, // 64 per worker
			MinLoadForParallel: 100,
			BatchSize:          64,
			ShutdownTimeoutMs:  60000,
		},
		Classifier: ClassifierConfig{
			SerialKinds:     []string{},
			TransitionTicks: 39,
		},
		Drain: DrainConfig{
			InitialBackoffUs: 10,
			MaxBackoffUs:     1000,
		},
		Propagation: PropagationConfig{
			CriticalRadius:      32,
			HighRadius:          64,
			NormalRadius:        128,
			VelocityThreshold:   0.5,
			MaxDelayMs:          500,
			MaxUpdatesPerSecond: 20,
			StableThresholdMs:   200,
			MergeDelayMs:        10,
			MaxBatch:            64,
			BorderDelayMs:       20,
			BorderBatch:         32,
			RegionShift:         4,
			MaxForwardPerTick:   0,
		},
		Adaptive: AdaptiveConfig{
			TargetQueueDepth:    100,
			TargetLatencyMs:     50,
			WindowMs:            10000,
			RecommendIntervalMs: 5000,
			Apply:               false,
		},
		Budget: BudgetConfig{
			PerTick: 10,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Simulation: SimulationConfig{
			TickRate:            20,
			Ticks:               200,
			Entities:            2000,
			ReferencePoints:     4,
			LightEventsPerTick:  200,
			PathRequestsPerTick: 30,
			FailureRate:         0.0005,
			WorkMicros:          20,
			Seed:                1,
		},
	}
}

// ResolvedWorkers returns the pool size after applying the auto default and
// the minimum of 2.
func (c *DispatchConfig) ResolvedWorkers() int {
	n := c.Workers
	if n == 0 {
		n = runtime.NumCPU() / 4
	}
	return max(n, 2)
}

// ShutdownTimeout returns the shutdown timeout as a time.Duration
func (c *DispatchConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// InitialBackoff returns the first idle wait of the drain barrier
func (c *DrainConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffUs) * time.Microsecond
}

// MaxBackoff returns the cap on the drain barrier's idle wait
func (c *DrainConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffUs) * time.Microsecond
}

// MaxDelay returns the ready queue starvation bound as a time.Duration
func (c *PropagationConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// StableThreshold returns the debounce stability threshold as a time.Duration
func (c *PropagationConfig) StableThreshold() time.Duration {
	return time.Duration(c.StableThresholdMs) * time.Millisecond
}

// MergeDelay returns the merge buffer flush delay as a time.Duration
func (c *PropagationConfig) MergeDelay() time.Duration {
	return time.Duration(c.MergeDelayMs) * time.Millisecond
}

// BorderDelay returns the border buffer flush delay as a time.Duration
func (c *PropagationConfig) BorderDelay() time.Duration {
	return time.Duration(c.BorderDelayMs) * time.Millisecond
}

// TargetLatency returns the target per-batch latency as a time.Duration
func (c *AdaptiveConfig) TargetLatency() time.Duration {
	return time.Duration(c.TargetLatencyMs) * time.Millisecond
}

// Window returns the monitoring window as a time.Duration
func (c *AdaptiveConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

// RecommendInterval returns the recommendation cadence as a time.Duration
func (c *AdaptiveConfig) RecommendInterval() time.Duration {
	return time.Duration(c.RecommendIntervalMs) * time.Millisecond
}

// TickInterval returns the simulated tick period
func (c *SimulationConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(c.TickRate)
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	d := Default()

	// Dispatch defaults
	v.SetDefault("dispatch.workers", d.Dispatch.Workers)
	v.SetDefault("dispatch.queue_capacity", d.Dispatch.QueueCapacity)
	v.SetDefault("dispatch.min_load_for_parallel", d.Dispatch.MinLoadForParallel)
	v.SetDefault("dispatch.batch_size", d.Dispatch.BatchSize)
	v.SetDefault("dispatch.shutdown_timeout_ms", d.Dispatch.ShutdownTimeoutMs)

	// Classifier defaults
	v.SetDefault("classifier.serial_kinds", d.Classifier.SerialKinds)
	v.SetDefault("classifier.transition_ticks", d.Classifier.TransitionTicks)

	// Drain defaults
	v.SetDefault("drain.initial_backoff_us", d.Drain.InitialBackoffUs)
	v.SetDefault("drain.max_backoff_us", d.Drain.MaxBackoffUs)

	// Propagation defaults
	v.SetDefault("propagation.critical_radius", d.Propagation.CriticalRadius)
	v.SetDefault("propagation.high_radius", d.Propagation.HighRadius)
	v.SetDefault("propagation.normal_radius", d.Propagation.NormalRadius)
	v.SetDefault("propagation.velocity_threshold", d.Propagation.VelocityThreshold)
	v.SetDefault("propagation.max_delay_ms", d.Propagation.MaxDelayMs)
	v.SetDefault("propagation.max_updates_per_second", d.Propagation.MaxUpdatesPerSecond)
	v.SetDefault("propagation.stable_threshold_ms", d.Propagation.StableThresholdMs)
	v.SetDefault("propagation.merge_delay_ms", d.Propagation.MergeDelayMs)
	v.SetDefault("propagation.max_batch", d.Propagation.MaxBatch)
	v.SetDefault("propagation.border_delay_ms", d.Propagation.BorderDelayMs)
	v.SetDefault("propagation.border_batch", d.Propagation.BorderBatch)
	v.SetDefault("propagation.region_shift", d.Propagation.RegionShift)
	v.SetDefault("propagation.max_forward_per_tick", d.Propagation.MaxForwardPerTick)

	// Adaptive defaults
	v.SetDefault("adaptive.target_queue_depth", d.Adaptive.TargetQueueDepth)
	v.SetDefault("adaptive.target_latency_ms", d.Adaptive.TargetLatencyMs)
	v.SetDefault("adaptive.window_ms", d.Adaptive.WindowMs)
	v.SetDefault("adaptive.recommend_interval_ms", d.Adaptive.RecommendIntervalMs)
	v.SetDefault("adaptive.apply", d.Adaptive.Apply)

	// Budget defaults
	v.SetDefault("budget.per_tick", d.Budget.PerTick)

	// Logging defaults
	v.SetDefault("logging.enabled", d.Logging.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)

	// Simulation defaults
	v.SetDefault("simulation.tick_rate", d.Simulation.TickRate)
	v.SetDefault("simulation.ticks", d.Simulation.Ticks)
	v.SetDefault("simulation.entities", d.Simulation.Entities)
	v.SetDefault("simulation.reference_points", d.Simulation.ReferencePoints)
	v.SetDefault("simulation.light_events_per_tick", d.Simulation.LightEventsPerTick)
	v.SetDefault("simulation.path_requests_per_tick", d.Simulation.PathRequestsPerTick)
	v.SetDefault("simulation.failure_rate", d.Simulation.FailureRate)
	v.SetDefault("simulation.work_micros", d.Simulation.WorkMicros)
	v.SetDefault("simulation.seed", d.Simulation.Seed)
}

// ConfigureViper applies defaults and environment variable handling to v.
func ConfigureViper(v *viper.Viper) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ticksched")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ticksched"
	}
	return filepath.Join(home, ".config", "ticksched")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
