package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ioc-labs/surge/internal/config"
)

func newInitCmd() *cobra.Command {
	var url string
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default auto-scaling verification config",
		Long: `Write a configuration with the four default scenarios (baseline, ramp_up,
spike, stress), the default product API traffic mix and thresholds.
The path defaults to surge.yaml; a .json extension writes JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "surge.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := config.Marshal(config.Default(url), path)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Base URL of the target")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
