package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/reportengine/internal/api/client"
	"github.com/spf13/cobra"
)

func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Short:   "Materialized report commands",
		Aliases: []string{"reports", "r"},
	}

	cmd.AddCommand(newReportListCommand())
	cmd.AddCommand(newReportGetCommand())

	return cmd
}

func newReportListCommand() *cobra.Command {
	var (
		scheduleID string
		limit      int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List reports",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			reports, err := c.ListReports(scheduleID, limit)
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tACCOUNT\tPERIOD\tRANGE\tSLIDES")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s .. %s\t%d\n",
					r.ID,
					r.Title,
					r.AccountName,
					r.Period,
					r.StartDate.Format("2006-01-02"),
					r.EndDate.Format("2006-01-02"),
					len(r.SlideIDs),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&scheduleID, "schedule", "s", "", "Only reports generated by this schedule")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of reports to show")
	return cmd
}

func newReportGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [report-id]",
		Short: "Show a report and its slides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			detail, err := c.GetReport(args[0])
			if err != nil {
				return fmt.Errorf("failed to get report: %w", err)
			}

			r := detail.Report
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", r.ID)
			fmt.Fprintf(out, "Title:     %s\n", r.Title)
			fmt.Fprintf(out, "Account:   %s (%s)\n", r.AccountName, r.AccountID)
			fmt.Fprintf(out, "Period:    %s\n", r.Period)
			fmt.Fprintf(out, "Range:     %s .. %s\n", r.StartDate.Format("2006-01-02 15:04:05.000"), r.EndDate.Format("2006-01-02 15:04:05.000"))
			fmt.Fprintf(out, "Status:    %s\n", r.Status)
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "#\tID\tTYPE\tORDER\tTITLE")
			for i, s := range detail.Slides {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", i+1, s.ID, s.Type, s.Order, s.Title)
			}
			return w.Flush()
		},
	}
}
