// Package mcp exposes the boundary engine as MCP tools so agent runtimes
// can evaluate classified content and manage approvals over stdio.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/engine"
	"github.com/mvoronin/perimeter/internal/policy"
)

// Config holds MCP server configuration.
type Config struct {
	PolicyPath     string
	AuditLogPath   string
	ApprovalDBPath string
	ApprovalTTL    time.Duration
}

// Server wraps the MCP SDK server around the boundary engine.
type Server struct {
	mcpServer *mcpsdk.Server
	repo      *policy.Repository
	engine    *engine.Engine
	workflow  *approval.Workflow
	store     *approval.Store
	trail     *audit.Log
}

// New loads the policy file, opens the stores, and registers the tools.
func New(cfg Config) (*Server, error) {
	file, hash, err := policy.LoadFileWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	repo := policy.NewRepository()
	if err := repo.Load(file.Rules); err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	trail, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	store, err := approval.Open(cfg.ApprovalDBPath)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("open approval store: %w", err)
	}
	dispatcher := alert.NewDispatcher(file.Alerts)
	workflow := approval.NewWorkflow(store, trail, cfg.ApprovalTTL)
	workflow.SetAlerts(dispatcher)

	s := &Server{
		repo:     repo,
		workflow: workflow,
		store:    store,
		trail:    trail,
		engine: engine.New(engine.Config{
			Repository: repo,
			Approvals:  workflow,
			Trail:      trail,
			Alerts:     dispatcher,
			PolicyHash: hash,
		}),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "perimeter",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the stores.
func (s *Server) Close() error {
	err := s.trail.Close()
	if serr := s.store.Close(); err == nil {
		err = serr
	}
	return err
}

// registerTools adds all perimeter tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perimeter_evaluate",
		Description: "Evaluate classified content against boundary policy. Returns the decision (allow/block/redact/require_approval), the sanitized payload, and an approval id where applicable.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perimeter_approve",
		Description: "Approve a pending approval request. Fails if the request was already resolved.",
	}, s.handleApprove)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perimeter_reject",
		Description: "Reject a pending approval request. Fails if the request was already resolved.",
	}, s.handleReject)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perimeter_pending",
		Description: "List all pending approval requests.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "perimeter_audit_tail",
		Description: "Return the most recent audit records, optionally filtered by boundary or action.",
	}, s.handleAuditTail)
}
