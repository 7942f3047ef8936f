package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dispatch.MinLoadForParallel != 100 {
		t.Errorf("Dispatch.MinLoadForParallel = %d, want 100", cfg.Dispatch.MinLoadForParallel)
	}
	if cfg.Classifier.TransitionTicks != 39 {
		t.Errorf("Classifier.TransitionTicks = %d, want 39", cfg.Classifier.TransitionTicks)
	}
	if cfg.Drain.InitialBackoff() != 10*time.Microsecond {
		t.Errorf("Drain.InitialBackoff() = %v, want 10µs", cfg.Drain.InitialBackoff())
	}
	if cfg.Drain.MaxBackoff() != time.Millisecond {
		t.Errorf("Drain.MaxBackoff() = %v, want 1ms", cfg.Drain.MaxBackoff())
	}
	if cfg.Propagation.CriticalRadius != 32 || cfg.Propagation.HighRadius != 64 || cfg.Propagation.NormalRadius != 128 {
		t.Errorf("unexpected radii: %+v", cfg.Propagation)
	}
	if cfg.Propagation.MergeDelay() != 10*time.Millisecond {
		t.Errorf("Propagation.MergeDelay() = %v", cfg.Propagation.MergeDelay())
	}
	if cfg.Propagation.MaxDelay() != 500*time.Millisecond {
		t.Errorf("Propagation.MaxDelay() = %v", cfg.Propagation.MaxDelay())
	}
	if cfg.Budget.PerTick != 10 {
		t.Errorf("Budget.PerTick = %d, want 10", cfg.Budget.PerTick)
	}
	if cfg.Simulation.TickInterval() != 50*time.Millisecond {
		t.Errorf("Simulation.TickInterval() = %v", cfg.Simulation.TickInterval())
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", ValidationErrors(errs))
	}
}

func TestResolvedWorkers(t *testing.T) {
	auto := max(runtime.NumCPU()/4, 2)
	tests := []struct {
		workers int
		want    int
	}{
		{0, auto},
		{1, 2},
		{2, 2},
		{12, 12},
	}
	for _, tt := range tests {
		d := DispatchConfig{Workers: tt.workers}
		if got := d.ResolvedWorkers(); got != tt.want {
			t.Errorf("ResolvedWorkers(%d) = %d, want %d", tt.workers, got, tt.want)
		}
	}
}

func newViper(t *testing.T, yamlContent string) *viper.Viper {
	t.Helper()
	v := viper.New()
	ConfigureViper(v)
	if yamlContent == "" {
		return v
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	return v
}

func TestLoadFrom(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		cfg, err := LoadFrom(newViper(t, ""))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.Propagation.MaxUpdatesPerSecond != 20 {
			t.Errorf("MaxUpdatesPerSecond = %d, want 20", cfg.Propagation.MaxUpdatesPerSecond)
		}
	})

	t.Run("file overrides", func(t *testing.T) {
		cfg, err := LoadFrom(newViper(t, `
dispatch:
  workers: 6
classifier:
  serial_kinds: ["projectile/*", "vehicle/minecart*"]
budget:
  per_tick: 3
`))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.Dispatch.Workers != 6 {
			t.Errorf("Workers = %d, want 6", cfg.Dispatch.Workers)
		}
		if len(cfg.Classifier.SerialKinds) != 2 {
			t.Errorf("SerialKinds = %v", cfg.Classifier.SerialKinds)
		}
		if cfg.Budget.PerTick != 3 {
			t.Errorf("PerTick = %d, want 3", cfg.Budget.PerTick)
		}
		// Untouched keys keep defaults.
		if cfg.Dispatch.MinLoadForParallel != 100 {
			t.Errorf("MinLoadForParallel = %d, want 100", cfg.Dispatch.MinLoadForParallel)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TICKSCHED_BUDGET_PER_TICK", "42")
		cfg, err := LoadFrom(newViper(t, ""))
		if err != nil {
			t.Fatalf("LoadFrom: %v", err)
		}
		if cfg.Budget.PerTick != 42 {
			t.Errorf("PerTick = %d, want 42", cfg.Budget.PerTick)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadFrom(newViper(t, `
propagation:
  high_radius: 10
`))
		if err == nil {
			t.Fatal("expected validation error")
		}
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("error type = %T, want ValidationErrors", err)
		}
		if verrs[0].Field != "propagation.high_radius" {
			t.Errorf("Field = %q", verrs[0].Field)
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigDir(); got != "/tmp/xdg/ticksched" {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != "/tmp/xdg/ticksched/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Classifier.SerialKinds = []string{"projectile/*"}
	cfg.Budget.PerTick = 7

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteFile(path, cfg, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, cfg, false); err == nil {
		t.Error("WriteFile should refuse to overwrite without force")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "per_tick: 7") {
		t.Errorf("rendered YAML missing budget.per_tick:\n%s", data)
	}

	v := viper.New()
	ConfigureViper(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	loaded, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Budget.PerTick != 7 || len(loaded.Classifier.SerialKinds) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestWatchViper(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("budget:\n  per_tick: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	ConfigureViper(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	var mu sync.Mutex
	var got *Config
	WatchViper(v, func(_ fsnotify.Event, cfg *Config, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			got = cfg
		}
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("budget:\n  per_tick: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := got != nil && got.Budget.PerTick == 5
		mu.Unlock()
		if done {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("config change was not observed")
}
