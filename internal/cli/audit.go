package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvoronin/perimeter/internal/audit"
)

var (
	tailPath     string
	tailLines    int
	tailBoundary string
	tailAction   string
	tailSince    string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().StringVar(&tailPath, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent records to show")
	auditTailCmd.Flags().StringVar(&tailBoundary, "boundary", "", "Only records for this boundary")
	auditTailCmd.Flags().StringVar(&tailAction, "action", "", "Only records with this decision")
	auditTailCmd.Flags().StringVar(&tailSince, "since", "", "Only records at or after this RFC3339 timestamp")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every record's prev_hash\nmatches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit records",
	Long:  "Queries the audit log for the most recent records, optionally filtered\nby boundary, decision, or time, and pretty-prints them.",
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d records verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{
		Boundary: tailBoundary,
		Action:   tailAction,
		Limit:    tailLines,
	}
	if tailSince != "" {
		ts, err := time.Parse(time.RFC3339, tailSince)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", tailSince, err)
		}
		filter.Since = ts
	}

	trail, err := audit.Open(tailPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer trail.Close()

	recs, err := trail.Query(filter)
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}

	for _, r := range recs {
		out, _ := json.MarshalIndent(r, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}
