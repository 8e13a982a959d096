package perimeter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/engine"
	"github.com/mvoronin/perimeter/internal/policy"
)

// Client evaluates classified content against boundary policy in-process.
// Safe for concurrent use.
type Client struct {
	cfg      clientConfig
	repo     *policy.Repository
	engine   *engine.Engine
	workflow *approval.Workflow
	store    *approval.Store
	trail    *audit.Log
}

// New creates a Client with the given options. Paths not set by options
// fall back to files under ~/.perimeter.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.policyPath == "" {
		cfg.policyPath = defaultFile("policy.yaml")
	}
	if cfg.auditLogPath == "" {
		cfg.auditLogPath = defaultFile("audit.jsonl")
	}

	file, hash, err := policy.LoadFileWithHash(cfg.policyPath)
	if err != nil {
		return nil, fmt.Errorf("perimeter: load policy: %w", err)
	}
	repo := policy.NewRepository()
	if err := repo.Load(file.Rules); err != nil {
		return nil, fmt.Errorf("perimeter: load policy: %w", err)
	}

	trail, err := audit.Open(cfg.auditLogPath)
	if err != nil {
		return nil, fmt.Errorf("perimeter: open audit log: %w", err)
	}

	store, err := approval.Open(cfg.approvalDBPath)
	if err != nil {
		trail.Close()
		return nil, fmt.Errorf("perimeter: open approval store: %w", err)
	}
	dispatcher := alert.NewDispatcher(file.Alerts)
	workflow := approval.NewWorkflow(store, trail, cfg.approvalTTL)
	workflow.SetAlerts(dispatcher)

	return &Client{
		cfg:      cfg,
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
	}, nil
}

// Evaluate runs the content through policy and returns the decision.
// The evaluation is audited regardless of outcome.
func (c *Client) Evaluate(content Content) (Result, error) {
	d, err := c.engine.Evaluate(toInternalContent(content))
	if err != nil {
		return Result{}, err
	}
	return toResult(d), nil
}

// Approve resolves a pending approval request.
func (c *Client) Approve(id, actor, note string) error {
	_, err := c.workflow.Approve(id, actor, note)
	return err
}

// Reject resolves a pending approval request.
func (c *Client) Reject(id, actor, note string) error {
	_, err := c.workflow.Reject(id, actor, note)
	return err
}

// Pending lists unresolved approval requests.
func (c *Client) Pending() ([]Approval, error) {
	reqs, err := c.workflow.Pending()
	if err != nil {
		return nil, err
	}
	out := make([]Approval, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Approval{
			ID:        r.ID,
			Boundary:  r.Boundary,
			Summary:   r.Summary,
			Reason:    r.Reason,
			State:     string(r.State),
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}

// SweepExpired moves overdue pending requests to expired.
func (c *Client) SweepExpired() ([]Approval, error) {
	reqs, err := c.workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	out := make([]Approval, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, Approval{
			ID:        r.ID,
			Boundary:  r.Boundary,
			Summary:   r.Summary,
			Reason:    r.Reason,
			State:     string(r.State),
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}

// AuditTail returns the most recent n audit records, oldest first.
func (c *Client) AuditTail(n int) ([]audit.Record, error) {
	return c.trail.Query(audit.Filter{Limit: n})
}

// Close releases the audit log and approval store.
func (c *Client) Close() error {
	err := c.trail.Close()
	if serr := c.store.Close(); err == nil {
		err = serr
	}
	return err
}

func defaultFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "perimeter-"+name)
	}
	return filepath.Join(home, ".perimeter", name)
}
