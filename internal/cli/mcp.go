package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	perimetermcp "github.com/mvoronin/perimeter/internal/mcp"
)

var (
	mcpPolicy      string
	mcpAuditLog    string
	mcpApprovalDB  string
	mcpApprovalTTL time.Duration
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpPolicy, "policy", defaultPolicyPath(), "Path to policy YAML")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	mcpCmd.Flags().StringVar(&mcpApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
	mcpCmd.Flags().DurationVar(&mcpApprovalTTL, "approval-ttl", time.Hour, "Pending approvals expire after this; 0 means never")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs perimeter as an MCP (Model Context Protocol) server over stdio.\nExposes tools: evaluate, approve, reject, pending, audit_tail.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	srv, err := perimetermcp.New(perimetermcp.Config{
		PolicyPath:     mcpPolicy,
		AuditLogPath:   mcpAuditLog,
		ApprovalDBPath: mcpApprovalDB,
		ApprovalTTL:    mcpApprovalTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "perimeter MCP server running on stdio")
	return srv.Run(ctx)
}
