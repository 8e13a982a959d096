package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	sweepAuditLog   string
	sweepApprovalDB string
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	sweepCmd.Flags().StringVar(&sweepApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue approval requests",
	Long:  "Moves every pending request past its deadline to expired and records\neach transition in the audit log.",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	workflow, closeAll, err := openWorkflow(sweepAuditLog, sweepApprovalDB)
	if err != nil {
		return err
	}
	defer closeAll()

	expired, err := workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep approvals: %w", err)
	}

	if len(expired) == 0 {
		fmt.Println("Nothing to expire.")
		return nil
	}
	for _, r := range expired {
		fmt.Printf("expired %s (%s)\n", r.ID, truncate(r.Summary, 60))
	}
	return nil
}
