package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ioc-labs/surge/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var dsn, name string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs of a test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--dsn is required")
			}
			store, err := history.Open(dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			writeHistory(cmd, records)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	cmd.Flags().StringVar(&name, "name", "auto-scaling verification", "Test name to list")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs")
	return cmd
}

func writeHistory(cmd *cobra.Command, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tRUN\tREQUESTS\tFAILED\tP95\tP99\tPEAK VUS\tRESULT")
	for _, r := range records {
		result := "pass"
		if !r.Passed {
			result = "fail"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f%%\t%.2fms\t%.2fms\t%d\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.RunID, r.TotalRequests, r.FailedRate*100,
			r.P95, r.P99, r.PeakVUs, result)
	}
	_ = w.Flush()
}
