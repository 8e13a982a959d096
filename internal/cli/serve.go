package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvoronin/perimeter/internal/server"
)

var (
	serveAddr          string
	servePolicy        string
	serveAuditLog      string
	serveApprovalDB    string
	serveApprovalTTL   time.Duration
	serveSweepInterval time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7384", "HTTP listen address")
	serveCmd.Flags().StringVar(&servePolicy, "policy", defaultPolicyPath(), "Path to policy YAML")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", defaultAuditPath(), "Path to audit log JSONL file")
	serveCmd.Flags().StringVar(&serveApprovalDB, "approval-db", "", "Path to approval database (default ~/.perimeter/approvals.db)")
	serveCmd.Flags().DurationVar(&serveApprovalTTL, "approval-ttl", time.Hour, "Pending approvals expire after this; 0 means never")
	serveCmd.Flags().DurationVar(&serveSweepInterval, "sweep-interval", time.Minute, "How often expired approvals are swept; 0 disables the sweeper")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP policy sidecar",
	Long:  "Runs perimeter as a localhost HTTP sidecar.\nAgents POST classified content to /v1/evaluate and resolve approvals\nover /v1/approvals. The policy file is hot-reloaded on change.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := server.Config{
		Addr:           serveAddr,
		PolicyPath:     servePolicy,
		AuditLogPath:   serveAuditLog,
		ApprovalDBPath: serveApprovalDB,
		ApprovalTTL:    serveApprovalTTL,
		SweepInterval:  serveSweepInterval,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := server.NewReloader(srv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down policy sidecar...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "perimeter sidecar listening on %s\n", serveAddr)
	fmt.Fprintf(os.Stderr, "Policy: %s (hot-reload enabled)\n", servePolicy)
	fmt.Fprintln(os.Stderr)

	return srv.Serve(ctx)
}
