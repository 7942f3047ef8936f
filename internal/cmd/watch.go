package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/ticksched/internal/errors"
	"github.com/Iron-Ham/ticksched/internal/scheduler"
	"github.com/Iron-Ham/ticksched/internal/sim"
	"github.com/Iron-Ham/ticksched/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the simulation in real time with a live dashboard",
	Long: `Run the simulation in real time at simulation.tick_rate and show a live
dashboard of the scheduler. When stdout is not a terminal, a one-line status is
printed once per second of simulated time instead.

Keys: p pause, + / - resize the worker pool, ? help, q quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchRefresh time.Duration
	watchPlain   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	f := watchCmd.Flags()
	f.IntVarP(&simTicks, "ticks", "n", 0, "ticks to run, 0 runs until quit")
	f.IntVar(&simEntities, "entities", 0, "entity count (default from simulation.entities)")
	f.Int64Var(&simSeed, "seed", 0, "world seed (default from simulation.seed)")
	f.DurationVar(&watchRefresh, "refresh", tui.DefaultRefresh, "dashboard refresh interval")
	f.BoolVar(&watchPlain, "plain", false, "print status lines instead of the dashboard")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := simulationConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("ticks") {
		cfg.Simulation.Ticks = 0
	}

	plain := watchPlain || !term.IsTerminal(int(os.Stdout.Fd()))
	logger, err := newLogger(cfg, !plain)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []sim.Option{sim.WithLogger(logger), sim.WithRealtime(true)}
	if plain {
		opts = append(opts, sim.WithTickHook(statusPrinter(cmd.OutOrStdout(), cfg.Simulation.TickRate)))
		host, err := sim.New(cfg, opts...)
		if err != nil {
			return err
		}
		summary, err := host.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	}

	var app *tui.App
	opts = append(opts, sim.WithTickHook(func(r scheduler.TickReport) { app.Report(r) }))
	host, err := sim.New(cfg, opts...)
	if err != nil {
		return err
	}
	app = tui.New(host.Scheduler(), watchRefresh, cfg.Simulation.TickInterval())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() {
		_, err := host.Run(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		app.Done(err)
	})

	err = app.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// statusPrinter returns a tick hook that prints one line every every ticks.
func statusPrinter(w io.Writer, every int) func(scheduler.TickReport) {
	every = max(every, 1)
	return func(r scheduler.TickReport) {
		if r.Tick%uint64(every) != 0 {
			return
		}
		fmt.Fprintf(w, "tick %6d  mspt %-8s tps %5.2f  units %4d (%d serial)  batches %3d  deferred %d\n",
			r.Tick, r.MSPT.Round(time.Microsecond), r.TPS, r.Units(), r.Serial, r.Forwarded, r.PendingDeferred)
	}
}
