package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transfers from the ledger",
	Long:  `Show recent transfers from the ledger, newest first. With --node only transfers touching that node are shown.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if App == nil {
			return fmt.Errorf("app not initialized")
		}

		rows, err := App.Repository.ListTransfers(cmd.Context(), nodeFlag, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to read transfer ledger: %w", err)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transfers yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "WHEN\tSTATUS\tFILES\tDURATION\tFROM\tTO\n")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s:%s\t%s:%s\n",
				humanize.Time(r.StartedAt),
				r.Status,
				r.Count,
				time.Duration(r.DurationMs)*time.Millisecond,
				r.SourceNode, r.SourcePath,
				r.DestNode, r.DestPath,
			)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of transfers to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
