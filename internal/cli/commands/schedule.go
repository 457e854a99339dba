package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/reportengine/internal/api/client"
	"github.com/reportengine/internal/models"
	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Short:   "Report schedule commands",
		Aliases: []string{"schedules", "s"},
	}

	cmd.AddCommand(newScheduleListCommand())
	cmd.AddCommand(newScheduleGetCommand())
	cmd.AddCommand(newScheduleRunCommand())
	cmd.AddCommand(newScheduleToggleCommand("enable", "Enable a schedule"))
	cmd.AddCommand(newScheduleToggleCommand("disable", "Disable a schedule"))
	cmd.AddCommand(newScheduleRunsCommand())

	return cmd
}

func newScheduleListCommand() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List schedules",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			schedules, err := c.ListSchedules(activeOnly)
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFREQUENCY\tACTIVE\tSTATUS\tNEXT RUN\tRUNS (OK/FAILED)")
			for _, s := range schedules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\t%d/%d\n",
					s.ID,
					s.Name,
					s.Recurrence.Frequency,
					s.IsActive,
					s.Status,
					s.NextRun.Format(time.RFC3339),
					s.SuccessfulRuns,
					s.FailedRuns,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active schedules")
	return cmd
}

func newScheduleGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [schedule-id]",
		Short: "Show a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			s, err := c.GetSchedule(args[0])
			if err != nil {
				return fmt.Errorf("failed to get schedule: %w", err)
			}
			printSchedule(cmd, s)
			return nil
		},
	}
}

func printSchedule(cmd *cobra.Command, s *models.Schedule) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:           %s\n", s.ID)
	fmt.Fprintf(out, "Name:         %s\n", s.Name)
	fmt.Fprintf(out, "Template:     %s\n", s.TemplateID)
	fmt.Fprintf(out, "Account:      %s\n", s.AccountID)
	fmt.Fprintf(out, "Frequency:    %s\n", s.Recurrence.Frequency)
	fmt.Fprintf(out, "Active:       %t\n", s.IsActive)
	fmt.Fprintf(out, "Status:       %s\n", s.Status)
	fmt.Fprintf(out, "Next run:     %s\n", s.NextRun.Format(time.RFC3339))
	if s.LastRun != nil {
		fmt.Fprintf(out, "Last run:     %s (%s)\n", s.LastRun.Format(time.RFC3339), s.LastRunStatus)
	}
	fmt.Fprintf(out, "Runs:         %d total, %d ok, %d failed\n", s.TotalRuns, s.SuccessfulRuns, s.FailedRuns)
	if s.LastGeneratedReportID != "" {
		fmt.Fprintf(out, "Last report:  %s\n", s.LastGeneratedReportID)
	}
	if s.LastRunError != "" {
		fmt.Fprintf(out, "Last error:   %s\n", s.LastRunError)
	}
}

func newScheduleRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [schedule-id]",
		Short: "Materialize a schedule's report now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			result, err := c.RunSchedule(args[0])
			if err != nil {
				return fmt.Errorf("failed to run schedule: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s generated report %s\n", result.ScheduleID, result.ReportID)
			return nil
		},
	}
}

func newScheduleToggleCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [schedule-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			toggle := c.EnableSchedule
			if action == "disable" {
				toggle = c.DisableSchedule
			}
			s, err := toggle(args[0])
			if err != nil {
				return fmt.Errorf("failed to %s schedule: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s %sd\n", s.ID, action)
			return nil
		},
	}
}

func newScheduleRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [schedule-id]",
		Short: "Show a schedule's run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			runs, err := c.ListRuns(args[0], limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "STARTED\tDURATION\tSTATUS\tREPORT\tERROR")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.StartedAt.Format(time.RFC3339),
					run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
					run.Status,
					run.ReportID,
					run.Error,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
