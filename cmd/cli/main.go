package main

import (
	"fmt"
	"os"

	"github.com/reportengine/internal/cli/commands"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "reportctl - manage scheduled report generation",
	Long: `reportctl talks to a running reportengine server.
It manages schedules and inspects the reports they produce.

The server address and token are read from REPORTENGINE_API_URL and REPORTENGINE_TOKEN.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(commands.NewScheduleCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewTickCommand())
	rootCmd.AddCommand(commands.NewMetricsCommand())
	rootCmd.AddCommand(commands.NewTokenCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
