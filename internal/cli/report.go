package cli

import (
	"github.com/spf13/cobra"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

var reportCmd = &cobra.Command{
	Use:   "report <timing.csv>",
	Short: "Summarize a saved timing log",
	Long: `Reload a timing log written by a run and print its per-phase timing,
total duration and drift against the configured durations.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	rep, err := engine.LoadReport(args[0])
	if err != nil {
		return failure(err)
	}
	printReport(cmd.OutOrStdout(), rep)
	return nil
}
