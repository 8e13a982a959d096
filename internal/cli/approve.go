package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
)

var (
	resolveActor      string
	resolveNote       string
	resolveAuditLog   string
	resolveApprovalDB string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	for _, c := range []*cobra.Command{approveCmd, rejectCmd} {
		c.Flags().StringVar(&resolveActor, "actor", "", "Who is resolving the request (required)")
		c.Flags().StringVar(&resolveNote, "note", "", "Optional resolution note")
		c.Flags().StringVar(&resolveAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
		c.Flags().StringVar(&resolveApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
		c.MarkFlagRequired("actor")
	}
}

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending approval request",
	Long:  "Moves a pending request to approved and records the transition in the\naudit log. Fails if the request was already resolved or expired.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(args[0], (*approval.Workflow).Approve)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending approval request",
	Long:  "Moves a pending request to rejected and records the transition in the\naudit log. Fails if the request was already resolved or expired.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(args[0], (*approval.Workflow).Reject)
	},
}

func runResolve(id string, fn func(*approval.Workflow, string, string, string) (*approval.Request, error)) error {
	workflow, closeAll, err := openWorkflow(resolveAuditLog, resolveApprovalDB)
	if err != nil {
		return err
	}
	defer closeAll()

	req, err := fn(workflow, id, resolveActor, resolveNote)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(req, "", "  ")
	fmt.Println(string(out))
	return nil
}

// openWorkflow wires a workflow for one-shot commands. TTL is zero: a
// resolution never creates new requests, so expiry does not apply here.
func openWorkflow(auditPath, dbPath string) (*approval.Workflow, func(), error) {
	trail, err := audit.Open(auditPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	store, err := approval.Open(dbPath)
	if err != nil {
		trail.Close()
		return nil, nil, fmt.Errorf("open approval store: %w", err)
	}
	closeAll := func() {
		trail.Close()
		store.Close()
	}
	return approval.NewWorkflow(store, trail, 0), closeAll, nil
}
