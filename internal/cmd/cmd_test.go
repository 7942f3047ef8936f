package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"

	"github.com/Iron-Ham/ticksched/internal/config"
	"github.com/Iron-Ham/ticksched/internal/scheduler"
	"github.com/Iron-Ham/ticksched/internal/testutil"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// resetFlags restores cmd's flags to their defaults once the test ends, so
// values set through the package-level commands do not leak between tests.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

// writeConfig writes a small, fast configuration and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Enabled = false
	cfg.Simulation.Entities = 100
	cfg.Simulation.LightEventsPerTick = 20
	cfg.Simulation.PathRequestsPerTick = 15
	cfg.Simulation.WorkMicros = 0
	cfg.Simulation.FailureRate = 0

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.WriteFile(path, cfg, false); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "ticksched" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "ticksched")
	}

	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, name := range []string{"simulate", "watch", "history", "config"} {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	out, err := executeCommand(rootCmd, "config", "init", path)
	if err != nil {
		t.Fatalf("config init error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created config file") {
		t.Errorf("config init output = %q", out)
	}

	if _, err := executeCommand(rootCmd, "config", "init", path); err == nil {
		t.Error("config init over an existing file should fail without --force")
	}

	out, err = executeCommand(rootCmd, "config", "validate", path)
	if err != nil {
		t.Fatalf("config validate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "is valid") {
		t.Errorf("config validate output = %q", out)
	}

	bad := testutil.WriteFile(t, dir, "bad.yaml", "dispatch:\n  workers: -3\nbudget:\n  per_tick: -1\n")
	_, err = executeCommand(rootCmd, "config", "validate", bad)
	if err == nil {
		t.Fatal("config validate should reject negative values")
	}
	if !strings.Contains(err.Error(), "is invalid") {
		t.Errorf("error = %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t)
	out, err := executeCommand(rootCmd, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"# Config file: " + path, "dispatch:", "propagation:", "entities: 100"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show output missing %q\n%s", want, out)
		}
	}

	out, err = executeCommand(rootCmd, "--config", path, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("config path = %q, want %q", strings.TrimSpace(out), path)
	}
}

func TestSimulateJSON(t *testing.T) {
	resetFlags(t, simulateCmd)
	path := writeConfig(t)
	out, err := executeCommand(rootCmd, "--config", path, "simulate", "--ticks", "5", "--json")
	if err != nil {
		t.Fatalf("simulate error = %v\n%s", err, out)
	}

	var report struct {
		Summary struct {
			Ticks        int `json:"ticks"`
			Units        int `json:"units"`
			PathRequests int `json:"path_requests"`
			Deferred     int `json:"deferred"`
		} `json:"summary"`
	}
	if err := sonnet.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Summary.Ticks != 5 {
		t.Errorf("ticks = %d, want 5", report.Summary.Ticks)
	}
	if report.Summary.Units == 0 {
		t.Error("units = 0")
	}
	if report.Summary.PathRequests != 75 {
		t.Errorf("path_requests = %d, want 75", report.Summary.PathRequests)
	}
	if report.Summary.Deferred == 0 {
		t.Error("15 requests a tick over a budget of 10 should defer some")
	}
}

func TestSimulateRecordAndHistory(t *testing.T) {
	resetFlags(t, simulateCmd)
	resetFlags(t, historyCmd)
	path := writeConfig(t)
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := executeCommand(rootCmd, "--config", path, "simulate",
		"--ticks", "4", "--json=false", "--record="+db, "--label", "smoke")
	if err != nil {
		t.Fatalf("simulate error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Simulation Summary") || !strings.Contains(out, "Recorded as run 1 in "+db) {
		t.Errorf("simulate output = %q", out)
	}

	out, err = executeCommand(rootCmd, "history", "--db", db)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, "smoke") {
		t.Errorf("history output = %q, want the smoke run", out)
	}

	out, err = executeCommand(rootCmd, "history", "show", "1", "--db", db)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	if !strings.Contains(out, "Ticks:     4") {
		t.Errorf("history show output = %q", out)
	}

	out, err = executeCommand(rootCmd, "history", "export", "1", "--db", db)
	if err != nil {
		t.Fatalf("history export error = %v", err)
	}
	var doc struct {
		Ticks []struct {
			Tick uint64 `json:"tick"`
		} `json:"ticks"`
	}
	if err := sonnet.Unmarshal([]byte(out), &doc); err != nil || len(doc.Ticks) != 4 {
		t.Errorf("history export = %q (err %v)", out, err)
	}

	if _, err := executeCommand(rootCmd, "history", "show", "abc", "--db", db); err == nil {
		t.Error("history show with a bad id should fail")
	}
	if _, err := executeCommand(rootCmd, "history", "delete", "1", "--db", db); err != nil {
		t.Errorf("history delete error = %v", err)
	}
	out, _ = executeCommand(rootCmd, "history", "--db", db)
	if !strings.Contains(out, "No recorded runs") {
		t.Errorf("history after delete = %q", out)
	}
}

func TestSimulateRejectsPositionalArgs(t *testing.T) {
	resetFlags(t, simulateCmd)
	path := writeConfig(t)
	db := filepath.Join(t.TempDir(), "history.db")

	// Without "=", the path after --record is a stray argument.
	out, err := executeCommand(rootCmd, "--config", path, "simulate",
		"--ticks", "1", "--record", db)
	if err == nil {
		t.Fatalf("simulate with a positional argument should fail\n%s", out)
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
	if strings.Contains(out, "Simulation Summary") {
		t.Errorf("simulation ran despite the bad arguments:\n%s", out)
	}
}

func TestStatusPrinter(t *testing.T) {
	var buf bytes.Buffer
	hook := statusPrinter(&buf, 20)
	for i := uint64(1); i <= 40; i++ {
		hook(scheduler.TickReport{Tick: i, Serial: 1, Parallel: 2})
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "tick     20") || !strings.Contains(lines[1], "units    3") {
		t.Errorf("lines = %q", lines)
	}
}
