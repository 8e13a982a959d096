package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pendingAuditLog   string
	pendingApprovalDB string
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVar(&pendingAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	pendingCmd.Flags().StringVar(&pendingApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending approval requests",
	Long:  "Shows all pending approval requests with their boundary, summary, and deadline.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	workflow, closeAll, err := openWorkflow(pendingAuditLog, pendingApprovalDB)
	if err != nil {
		return err
	}
	defer closeAll()

	list, err := workflow.Pending()
	if err != nil {
		return fmt.Errorf("list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-38s %-8s %-40s %s\n", "ID", "BOUNDARY", "SUMMARY", "EXPIRES")
	for _, a := range list {
		expires := "never"
		if a.ExpiresAt != nil {
			expires = a.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-38s %-8s %-40s %s\n", a.ID, a.Boundary, truncate(a.Summary, 40), expires)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
