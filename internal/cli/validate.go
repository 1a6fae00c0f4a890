package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ioc-labs/surge/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a test configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			config.ApplyDefaults(cfg)

			if err := cfg.Validate(); err != nil {
				var verrs *config.ValidationErrors
				if errors.As(err, &verrs) {
					fmt.Fprintf(out, "✗ %s has %d problem(s):\n", args[0], len(verrs.Errors))
					for _, e := range verrs.Errors {
						fmt.Fprintf(out, "  - %s\n", e.Error())
					}
					return &ExitError{Code: ExitFailure}
				}
				return &ExitError{Code: ExitFailure, Err: err}
			}

			fmt.Fprintf(out, "✓ %s is valid\n", args[0])
			var planEnd time.Duration
			for _, name := range cfg.ScenarioNames() {
				sc := cfg.Scenarios[name]
				total, _ := sc.TotalDuration()
				end, _ := sc.EndOffset()
				planEnd = max(planEnd, end)
				start := sc.StartTime
				if start == "" {
					start = "0s"
				}
				fmt.Fprintf(out, "  %-12s %-12s start %-6s duration %s\n", name, sc.Executor, start, total)
			}
			fmt.Fprintf(out, "  plan length %s\n", planEnd)
			for _, metric := range cfg.ThresholdMetrics() {
				for _, expr := range cfg.Thresholds[metric] {
					fmt.Fprintf(out, "  threshold %s %s\n", metric, expr)
				}
			}
			return nil
		},
	}
}
