package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sugawarayuuta/sonnet"

	"github.com/Iron-Ham/ticksched/internal/config"
	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/logging"
	"github.com/Iron-Ham/ticksched/internal/record"
	"github.com/Iron-Ham/ticksched/internal/sim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the scheduler against a synthetic world",
	Long: `Run the scheduler against a synthetic world of moving entities,
reference points, propagation events and budgeted path queries, then print a
summary of the run.

Examples:
  # 200 ticks as fast as possible
  ticksched simulate

  # Real time at the configured tick rate, recorded to the history database
  ticksched simulate --realtime --ticks 0 --record

  # Record to a specific database (the path must be joined with "=")
  ticksched simulate --record=./runs.db

  # Machine-readable summary
  ticksched simulate --ticks 500 --entities 10000 --json`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var (
	simTicks       int
	simEntities    int
	simSeed        int64
	simRealtime    bool
	simJSON        bool
	simRecord      string
	simLabel       string
	simWatchConfig bool
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	f := simulateCmd.Flags()
	f.IntVarP(&simTicks, "ticks", "n", 0, "ticks to run, 0 runs until interrupted (default from simulation.ticks)")
	f.IntVar(&simEntities, "entities", 0, "entity count (default from simulation.entities)")
	f.Int64Var(&simSeed, "seed", 0, "world seed (default from simulation.seed)")
	f.BoolVar(&simRealtime, "realtime", false, "pace ticks at simulation.tick_rate")
	f.BoolVar(&simJSON, "json", false, "print the summary as JSON")
	f.StringVar(&simRecord, "record", "", "record every tick to a SQLite database; use --record=<path> for a database other than the default")
	f.StringVar(&simLabel, "label", "", "label for the recorded run (default: a timestamp)")
	f.BoolVar(&simWatchConfig, "watch-config", false, "apply config file changes while running")
	f.Lookup("record").NoOptDefVal = defaultHistoryPath()
}

func defaultHistoryPath() string {
	return filepath.Join(config.ConfigDir(), "history.db")
}

// simulationConfig loads the configuration and applies the flags the user
// set on cmd.
func simulationConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("ticks") {
		cfg.Simulation.Ticks = max(simTicks, 0)
	}
	if f.Changed("entities") {
		cfg.Simulation.Entities = max(simEntities, 0)
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed = simSeed
	}
	return cfg, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := simulationConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, simJSON)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	opts := []sim.Option{
		sim.WithLogger(logger),
		sim.WithRealtime(simRealtime),
	}

	var runID int64
	if simRecord != "" {
		store, id, err := beginRecording(simRecord, simLabel, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		runID = id
		opts = append(opts, sim.WithTickHook(store.Hook(logger)))
	}

	host, err := sim.New(cfg, opts...)
	if err != nil {
		return err
	}
	if simWatchConfig {
		watchConfig(host, logger)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := host.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	out := cmd.OutOrStdout()
	if simJSON {
		return writeJSON(out, simulationReport{RunID: runID, Summary: summary})
	}
	printSummary(out, summary)
	if runID != 0 {
		fmt.Fprintf(out, "\nRecorded as run %d in %s\n", runID, simRecord)
	}
	return nil
}

func beginRecording(path, label string, cfg *config.Config) (*record.Store, int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, 0, fmt.Errorf("failed to create history directory: %w", err)
	}
	store, err := record.Open(path)
	if err != nil {
		return nil, 0, err
	}
	if label == "" {
		label = time.Now().Format("2006-01-02 15:04:05")
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		_ = store.Close()
		return nil, 0, err
	}
	id, err := store.BeginRun(label, string(data))
	if err != nil {
		_ = store.Close()
		return nil, 0, err
	}
	return store, id, nil
}

// watchConfig queues every valid rewrite of the config file on host.
func watchConfig(host *sim.Host, logger *logging.Logger) {
	path := viper.ConfigFileUsed()
	if path == "" {
		logger.Warn("--watch-config given but no config file is in use")
		return
	}
	config.Watch(func(ev fsnotify.Event, cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("ignoring invalid config change", "path", ev.Name, "error", err.Error())
			return
		}
		host.Reconfigure(ev.Name, cfg)
	})
	logger.Info("watching config file", "path", path)
}

type simulationReport struct {
	RunID   int64       `json:"run_id,omitempty"`
	Summary sim.Summary `json:"summary"`
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func printSummary(w io.Writer, s sim.Summary) {
	fmt.Fprintf(w, "Simulation Summary\n")
	fmt.Fprintf(w, "  Ticks:        %d in %s (avg %s, max %s)\n",
		s.Ticks, s.Elapsed.Round(time.Millisecond), s.AvgTick.Round(time.Microsecond), s.MaxTick.Round(time.Microsecond))
	fmt.Fprintf(w, "  TPS:          %.2f (missed %.1f)\n", s.AverageTPS, s.MissedTicks)

	fmt.Fprintf(w, "\nUnits\n")
	fmt.Fprintf(w, "  Total:        %d (%d serial, %d parallel)\n", s.Units, s.Serial, s.Parallel)
	fmt.Fprintf(w, "  Caller runs:  %d\n", s.CallerRuns)
	fmt.Fprintf(w, "  Failed:       %d (%d retried serially, %d demoted)\n", s.Failed, s.Retried, s.Demoted)
	fmt.Fprintf(w, "  Secondary:    %d chores during drain\n", s.Secondary)
	fmt.Fprintf(w, "  Peak in flight: %d on %d workers\n", s.PeakInFlight, s.Workers)

	fmt.Fprintf(w, "\nPropagation\n")
	fmt.Fprintf(w, "  Events:       %d submitted, %d debounced, %d combined, %d propagated\n",
		s.EventsSubmitted, s.EventsDropped, s.EventsCombined, s.EventsPropagated)
	fmt.Fprintf(w, "  Batches:      %d forwarded, %d regions evicted\n", s.BatchesForwarded, s.Evicted)

	fmt.Fprintf(w, "\nBudget\n")
	fmt.Fprintf(w, "  Requests:     %d (%d deferred, %d redeemed)\n", s.PathRequests, s.Deferred, s.Redeemed)

	fmt.Fprintf(w, "\nAdaptive\n")
	fmt.Fprintf(w, "  Batch size:   %d\n", s.BatchSize)
	if s.Recommendation.IsZero() {
		fmt.Fprintf(w, "  Advice:       none (%s)\n", orDash(s.Recommendation.Reason))
	} else {
		fmt.Fprintf(w, "  Advice:       %s (%s)\n", s.Recommendation, s.Recommendation.Reason)
	}
	if s.Reloads > 0 {
		fmt.Fprintf(w, "  Reloads:      %d\n", s.Reloads)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
