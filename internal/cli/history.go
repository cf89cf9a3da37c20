package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
	"github.com/eAi-solutions/mvast-fmri-task/internal/config"
	"github.com/eAi-solutions/mvast-fmri-task/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived sessions",
	Long: `List sessions archived in the history database, most recent first.

Examples:
  mvast-fmri history              # Last 10 sessions
  mvast-fmri history --limit 0    # All sessions
  mvast-fmri history show <id>    # Phases of one session`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one archived session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of sessions to show (0 for all)")
}

func openHistory() (*history.Store, error) {
	f, _, err := config.NewStore(configPath, logger).Load()
	if err != nil {
		return nil, err
	}
	if f.HistoryDB == "" {
		return nil, fmt.Errorf("history_db is not configured")
	}
	return history.Open(f.HistoryDB)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return failure(err)
	}
	defer store.Close()

	sessions, err := store.List(historyLimit)
	if err != nil {
		return failure(err)
	}
	printSessions(cmd.OutOrStdout(), sessions)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return failure(err)
	}
	defer store.Close()

	sum, rep, err := store.Get(args[0])
	if err != nil {
		return failure(err)
	}
	w := cmd.OutOrStdout()
	if sum.LogPath != "" {
		fmt.Fprintf(w, "Timing log: %s\n", sum.LogPath)
	}
	printReport(w, rep)
	return nil
}

func printSessions(out io.Writer, sessions []history.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSOURCE\tOUTCOME\tPHASES\tTOTAL\tDRIFT")
	fmt.Fprintln(w, "--\t-------\t------\t-------\t------\t-----\t-----")
	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			id,
			s.StartedAt.Local().Format(engine.TimestampLayout),
			s.StartSource,
			outcomeLabel(s.Outcome, s.Reason),
			s.Phases,
			formatSeconds(s.Total),
			driftLabel(s.Outcome, s.Drift, s.DriftExceeded))
	}
	w.Flush()
	fmt.Fprintf(out, "\nShowing %d session(s)\n", len(sessions))
}

// printReport writes the per-phase timing table and the session summary.
func printReport(out io.Writer, rep *engine.Report) {
	fmt.Fprintf(out, "Session %s started %s\n\n", rep.ID, rep.StartedAt.Local().Format(engine.TimestampLayout))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tCYCLE\tOFFSET\tEXPECTED\tACTUAL\tFLIPS\tOUTCOME")
	for _, p := range rep.Phases {
		flips := "-"
		if p.Kind == engine.PhaseCheckerboard {
			flips = fmt.Sprintf("%d/%d", p.Flips, p.ExpectedFlips)
		}
		cycle := "-"
		if p.Cycle > 0 {
			cycle = fmt.Sprintf("%d", p.Cycle)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Kind, cycle, formatSeconds(p.Offset), formatSeconds(p.Expected),
			formatSeconds(p.Actual), flips, p.Outcome)
	}
	w.Flush()

	fmt.Fprintf(out, "\nOutcome:  %s\n", outcomeLabel(rep.Outcome, rep.Reason))
	fmt.Fprintf(out, "Total:    %s\n", formatSeconds(rep.Total))
	fmt.Fprintf(out, "Expected: %s\n", formatSeconds(rep.Expected))
	fmt.Fprintf(out, "Drift:    %s\n", driftLabel(rep.Outcome, rep.Drift, rep.DriftExceeded))
}

func outcomeLabel(o engine.Outcome, r engine.CancelReason) string {
	if o == engine.Completed {
		return o.String()
	}
	return fmt.Sprintf("%s (%s)", o, r)
}

func driftLabel(o engine.Outcome, drift time.Duration, exceeded bool) string {
	if o != engine.Completed {
		return "-"
	}
	label := fmt.Sprintf("%+.3fs", drift.Seconds())
	if exceeded {
		label += " WARNING"
	}
	return label
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
