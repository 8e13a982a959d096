package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/engine"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/policy"
)

var (
	evalPolicy      string
	evalAuditLog    string
	evalApprovalDB  string
	evalApprovalTTL time.Duration
	evalFile        string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evalPolicy, "policy", defaultPolicyPath(), "Path to policy YAML")
	evaluateCmd.Flags().StringVar(&evalAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	evaluateCmd.Flags().StringVar(&evalApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
	evaluateCmd.Flags().DurationVar(&evalApprovalTTL, "approval-ttl", time.Hour, "Pending approvals expire after this; 0 means never")
	evaluateCmd.Flags().StringVarP(&evalFile, "file", "f", "", "Read classified content JSON from file instead of stdin")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate classified content from stdin or a file",
	Long: "Reads classified content JSON, evaluates it against the policy, prints the\n" +
		"decision, and appends an audit record.\n\n" +
		"Exit codes: 0 allow or redact, 1 block, 2 require_approval.\n\n" +
		"Input shape:\n" +
		`  {"boundary": "output", "payload": "...", "classifications": [{"tag": "pii/email", "span": {"start": 0, "end": 5}}]}`,
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if evalFile != "" {
		f, err := os.Open(evalFile)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var content model.ClassifiedContent
	if err := json.NewDecoder(in).Decode(&content); err != nil {
		return fmt.Errorf("decode classified content: %w", err)
	}

	file, hash, err := policy.LoadFileWithHash(evalPolicy)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	repo := policy.NewRepository()
	if err := repo.Load(file.Rules); err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	trail, err := audit.Open(evalAuditLog)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer trail.Close()

	store, err := approval.Open(evalApprovalDB)
	if err != nil {
		return fmt.Errorf("open approval store: %w", err)
	}
	defer store.Close()

	dispatcher := alert.NewDispatcher(file.Alerts)
	workflow := approval.NewWorkflow(store, trail, evalApprovalTTL)
	workflow.SetAlerts(dispatcher)

	eng := engine.New(engine.Config{
		Repository: repo,
		Approvals:  workflow,
		Trail:      trail,
		Alerts:     dispatcher,
		PolicyHash: hash,
	})

	decision, err := eng.Evaluate(content)
	if err != nil {
		return err
	}

	out, _ := json.MarshalIndent(decision, "", "  ")
	fmt.Println(string(out))

	// Exit codes skip the deferred closes; each audit append is already synced.
	switch decision.Action {
	case model.ActionBlock:
		trail.Close()
		store.Close()
		os.Exit(1)
	case model.ActionRequireApproval:
		trail.Close()
		store.Close()
		os.Exit(2)
	}
	return nil
}
