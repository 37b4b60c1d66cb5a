package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gadify-server/internal/storage"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage registered devices",
	Long:  `Inspect and verify registered devices directly against the store.`,
}

// titled renders enum values for table output, e.g. "pending" -> "Pending".
var titled = cases.Title(language.English)

func printDeviceTable(devices []storage.Device) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSERIAL\tTYPE\tSTATUS\tOWNER\tCREATED AT")
	for _, device := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			device.ID,
			device.Name,
			device.SerialNumber,
			titled.String(string(device.Type)),
			titled.String(string(device.Status)),
			device.UserID,
			device.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()
}

var deviceListCmd = &cobra.Command{
	Use:   "list [status]",
	Short: "List devices by status",
	Long:  `List devices by status. Valid statuses: pending, verified, reported. Defaults to pending.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		status := storage.DeviceStatusPending
		if len(args) > 0 {
			switch args[0] {
			case "pending":
				status = storage.DeviceStatusPending
			case "verified":
				status = storage.DeviceStatusVerified
			case "reported":
				status = storage.DeviceStatusReported
			default:
				slog.Error("Invalid status", "status", args[0])
				fmt.Println("Valid statuses: pending, verified, reported")
				os.Exit(1)
			}
		}

		devices, err := provider.ListDevices(ctx, status)
		if err != nil {
			slog.Error("Failed to list devices", "error", err)
			os.Exit(1)
		}

		if len(devices) == 0 {
			fmt.Printf("No %s devices found\n", status)
			return
		}
		printDeviceTable(devices)
	},
}

// getActiveUser returns a string identifying who is performing the action
// Format: username@hostname
func getActiveUser() string {
	username := "unknown"
	if currentUser, err := user.Current(); err == nil {
		username = currentUser.Username
	}

	hostname := "unknown"
	// Check environment variable first for SSH sessions
	if h := os.Getenv("SSH_CLIENT"); h != "" {
		ssh_client := strings.Split(h, " ")
		if len(ssh_client) > 0 {
			hostname = ssh_client[0]
		}
	} else if h, err := os.Hostname(); err == nil {
		hostname = h
	}

	return fmt.Sprintf("%s@%s", username, hostname)
}

var deviceVerifyCmd = &cobra.Command{
	Use:   "verify <device_id>",
	Short: "Verify a pending device",
	Long:  `Verify a pending device from the operator console, bypassing the staff login. The verifier is recorded as username@hostname.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		deviceID := args[0]

		device, err := provider.GetDevice(ctx, deviceID)
		if err != nil {
			slog.Error("Device not found", "device_id", deviceID, "error", err)
			os.Exit(1)
		}

		switch device.Status {
		case storage.DeviceStatusVerified:
			fmt.Printf("Device %s is already verified\n", deviceID)
			return
		case storage.DeviceStatusReported:
			fmt.Printf("Device %s has an open report and cannot be verified\n", deviceID)
			os.Exit(1)
		}

		verification := &storage.Verification{
			VerifiedBy: getActiveUser(),
			Date:       time.Now().UTC(),
		}

		ok, err := provider.UpdateDeviceStatus(ctx, deviceID, storage.DeviceStatusPending, storage.DeviceStatusVerified, verification)
		if err != nil {
			slog.Error("Failed to verify device", "device_id", deviceID, "error", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("Device %s changed state, re-run list and retry\n", deviceID)
			os.Exit(1)
		}

		fmt.Printf("Device %s verified by %s\n", deviceID, verification.VerifiedBy)
	},
}

var deviceSearchCmd = &cobra.Command{
	Use:   "search <serial>",
	Short: "Find devices by serial number",
	Long:  `Find devices whose serial number contains the given fragment. Useful when checking recovered hardware against the registry.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		devices, err := provider.SearchDevicesBySerial(ctx, args[0])
		if err != nil {
			slog.Error("Failed to search devices", "error", err)
			os.Exit(1)
		}

		if len(devices) == 0 {
			fmt.Println("No matching devices found")
			return
		}
		printDeviceTable(devices)
	},
}

func init() {
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceVerifyCmd)
	deviceCmd.AddCommand(deviceSearchCmd)
	rootCmd.AddCommand(deviceCmd)
}
