package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gadify-server/internal/identity"
	"gadify-server/internal/storage"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Manage student accounts",
}

var studentsListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List student accounts",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		search := ""
		if len(args) > 0 {
			search = args[0]
		}

		students, err := provider.ListStudents(ctx, search)
		if err != nil {
			slog.Error("Failed to list students", "error", err)
			os.Exit(1)
		}

		if len(students) == 0 {
			fmt.Println("No students found")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tMATRIC\tSTATUS")
		for _, student := range students {
			matric := ""
			if student.MatricNumber != nil {
				matric = *student.MatricNumber
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				student.ID,
				student.FullName,
				student.Email,
				matric,
				titled.String(string(student.Status)),
			)
		}
		w.Flush()
	},
}

func setStudentStatus(studentID string, status storage.ProfileStatus) {
	ctx := context.Background()
	if err := provider.UpdateStudentStatus(ctx, studentID, status); err != nil {
		slog.Error("Failed to update student status", "student_id", studentID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Student %s is now %s\n", studentID, status)
}

var studentsSuspendCmd = &cobra.Command{
	Use:   "suspend <student_id>",
	Short: "Suspend a student account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setStudentStatus(args[0], storage.ProfileStatusSuspended)
	},
}

var studentsReactivateCmd = &cobra.Command{
	Use:   "reactivate <student_id>",
	Short: "Reactivate a suspended student account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setStudentStatus(args[0], storage.ProfileStatusActive)
	},
}

var staffCreateCmd = &cobra.Command{
	Use:   "create-staff <email> <full name>",
	Short: "Provision a staff account",
	Long:  `Provision a staff account. The password is read from the terminal. Staff accounts cannot be created through the HTTP API.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			slog.Error("Failed to read password", "error", err)
			os.Exit(1)
		}

		profile, err := identity.CreateStaff(ctx, provider, args[0], string(password), args[1], nil)
		if err != nil {
			slog.Error("Failed to create staff account", "error", err)
			os.Exit(1)
		}

		fmt.Printf("Staff account %s created (%s)\n", profile.Email, profile.ID)
	},
}

func init() {
	studentsCmd.AddCommand(studentsListCmd)
	studentsCmd.AddCommand(studentsSuspendCmd)
	studentsCmd.AddCommand(studentsReactivateCmd)
	rootCmd.AddCommand(studentsCmd)
	rootCmd.AddCommand(staffCreateCmd)
}
