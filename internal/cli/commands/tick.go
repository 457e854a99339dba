package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/reportengine/internal/api/client"
	"github.com/spf13/cobra"
)

// NewTickCommand triggers one scheduler pass on the server.
func NewTickCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run every due schedule now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			result, err := c.Tick()
			if err != nil {
				return fmt.Errorf("failed to tick scheduler: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Due: %d  Succeeded: %d  Failed: %d  Skipped: %d  (%s)\n",
				result.Due, result.Succeeded, result.Failed, result.Skipped, result.Duration)
			return nil
		},
	}
}

func NewMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show scheduler metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			metrics, err := c.Metrics()
			if err != nil {
				return fmt.Errorf("failed to get metrics: %w", err)
			}

			keys := make([]string, 0, len(metrics))
			for k := range metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%v\n", k, metrics[k])
			}
			return w.Flush()
		},
	}
}
