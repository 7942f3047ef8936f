package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/ticksched/internal/record"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded simulation runs",
	Long: `List runs recorded with 'ticksched simulate --record'.

Examples:
  ticksched history
  ticksched history show 3
  ticksched history export 3 > run3.json
  ticksched history delete 3`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show the aggregate of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <run>",
	Short: "Write a recorded run and its ticks as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyDB string

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	historyCmd.PersistentFlags().StringVar(&historyDB, "db", defaultHistoryPath(), "history database")
}

func openHistory() (*record.Store, error) {
	return record.Open(historyDB)
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTARTED\tTICKS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", r.ID, r.Label, r.StartedAt.Format(time.DateTime), r.Ticks)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	a, err := store.Summarize(id)
	if err != nil {
		return err
	}
	if a.Ticks == 0 {
		return fmt.Errorf("run %d has no recorded ticks", id)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %d\n", id)
	fmt.Fprintf(out, "  Ticks:     %d\n", a.Ticks)
	fmt.Fprintf(out, "  Duration:  avg %s, max %s\n", a.AvgDuration.Round(time.Microsecond), a.MaxDuration.Round(time.Microsecond))
	fmt.Fprintf(out, "  Units:     %d serial, %d parallel\n", a.Serial, a.Parallel)
	fmt.Fprintf(out, "  Failed:    %d\n", a.Failed)
	fmt.Fprintf(out, "  Deferred:  %d\n", a.Deferred)
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Export(cmd.OutOrStdout(), id)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %d\n", id)
	return nil
}
