package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gadify-server/internal/storage"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage lost and stolen device reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List reports by status",
	Long:  `List reports by status. Valid statuses: active, resolved. Defaults to active.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		status := storage.ReportStatusActive
		if len(args) > 0 {
			switch args[0] {
			case "active":
				status = storage.ReportStatusActive
			case "resolved":
				status = storage.ReportStatusResolved
			default:
				slog.Error("Invalid status", "status", args[0])
				fmt.Println("Valid statuses: active, resolved")
				os.Exit(1)
			}
		}

		var reports []storage.Report
		var err error
		if status == storage.ReportStatusActive {
			reports, err = provider.ListActiveReports(ctx)
		} else {
			reports, err = provider.ListReports(ctx, status, "")
		}
		if err != nil {
			slog.Error("Failed to list reports", "error", err)
			os.Exit(1)
		}

		if len(reports) == 0 {
			fmt.Printf("No %s reports found\n", status)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDEVICE\tINCIDENT\tLOCATION\tSTATUS\tFILED AT")
		for _, report := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				report.ID,
				report.DeviceID,
				titled.String(string(report.IncidentType)),
				report.Location,
				titled.String(string(report.Status)),
				report.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		w.Flush()
	},
}

var reportResolveCmd = &cobra.Command{
	Use:   "resolve <report_id> <found|recovered>",
	Short: "Resolve an active report",
	Long:  `Resolve an active report from the operator console. The device returns to verified and the resolver is recorded as username@hostname.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		reportID := args[0]

		var resolutionType storage.ResolutionType
		switch args[1] {
		case "found":
			resolutionType = storage.ResolutionTypeFound
		case "recovered":
			resolutionType = storage.ResolutionTypeRecovered
		default:
			fmt.Println("Resolution type must be found or recovered")
			os.Exit(1)
		}

		report, err := provider.GetReport(ctx, reportID)
		if err != nil {
			slog.Error("Report not found", "report_id", reportID, "error", err)
			os.Exit(1)
		}
		if report.Status != storage.ReportStatusActive {
			fmt.Printf("Report %s is not active (status: %s)\n", reportID, report.Status)
			os.Exit(1)
		}

		resolution := storage.Resolution{
			Type:       resolutionType,
			ResolvedBy: getActiveUser(),
			Date:       time.Now().UTC(),
		}

		ok, err := provider.ResolveReport(ctx, reportID, resolution)
		if err != nil {
			slog.Error("Failed to resolve report", "report_id", reportID, "error", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("Report %s was resolved concurrently\n", reportID)
			os.Exit(1)
		}

		// Return the device to verified, matching the server-side flow.
		if ok, err := provider.UpdateDeviceStatus(ctx, report.DeviceID, storage.DeviceStatusReported, storage.DeviceStatusVerified, nil); err != nil || !ok {
			slog.Warn("Device status not restored, will reconcile on read", "device_id", report.DeviceID, "error", err)
		}

		fmt.Printf("Report %s resolved (%s) by %s\n", reportID, resolutionType, resolution.ResolvedBy)
	},
}

func init() {
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportResolveCmd)
	rootCmd.AddCommand(reportCmd)
}
