package approval

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvoronin/perimeter/internal/audit"
)

func newTestWorkflow(t *testing.T, ttl time.Duration) (*Workflow, *audit.Log) {
	t.Helper()
	dir := t.TempDir()

	store, err := Open(filepath.Join(dir, "approvals.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	trail, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { trail.Close() })

	return NewWorkflow(store, trail, ttl), trail
}

func TestWorkflowCreate(t *testing.T) {
	w, _ := newTestWorkflow(t, 15*time.Minute)
	now := time.Now().UTC()

	req, err := w.Create("action", "summary", "needs sign-off", "exec/destructive", now)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.ID == "" {
		t.Error("expected generated identifier")
	}
	if req.State != StatePending {
		t.Errorf("expected pending, got %s", req.State)
	}
	if req.ExpiresAt == nil || !req.ExpiresAt.Equal(now.Add(15*time.Minute)) {
		t.Errorf("expected deadline 15m out, got %v", req.ExpiresAt)
	}
}

func TestWorkflowCreateNoTTL(t *testing.T) {
	w, _ := newTestWorkflow(t, 0)
	req, err := w.Create("action", "summary", "reason", "", time.Now().UTC())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.ExpiresAt != nil {
		t.Errorf("ttl 0 must mean no deadline, got %v", req.ExpiresAt)
	}
}

func TestWorkflowTransitionsAreAudited(t *testing.T) {
	w, trail := newTestWorkflow(t, 0)
	now := time.Now().UTC()

	a, _ := w.Create("action", "s", "r", "p", now)
	b, _ := w.Create("action", "s", "r", "p", now)

	if _, err := w.Approve(a.ID, "alice", "fine"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := w.Reject(b.ID, "bob", "nope"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	recs, err := trail.Query(audit.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 transition records, got %d", len(recs))
	}

	first := recs[0]
	if first.Kind != audit.KindApproval || first.FromState != "pending" || first.ToState != "approved" {
		t.Errorf("unexpected transition record: %+v", first)
	}
	if first.Actor != "alice" || first.Note != "fine" || first.ApprovalID != a.ID {
		t.Errorf("transition record missing actor context: %+v", first)
	}
	if recs[1].ToState != "rejected" || recs[1].Actor != "bob" {
		t.Errorf("unexpected second record: %+v", recs[1])
	}
}

func TestWorkflowLifecycleExactlyOnce(t *testing.T) {
	w, _ := newTestWorkflow(t, 0)
	req, _ := w.Create("action", "s", "r", "", time.Now().UTC())

	if _, err := w.Approve(req.ID, "alice", ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if _, err := w.Approve(req.ID, "alice", ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved on re-approve, got %v", err)
	}
	if _, err := w.Reject(req.ID, "bob", ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved on reject-after-approve, got %v", err)
	}
}

func TestWorkflowSweepAudited(t *testing.T) {
	w, trail := newTestWorkflow(t, time.Minute)
	now := time.Now().UTC()

	req, _ := w.Create("output", "s", "r", "pii/*", now)

	expired, err := w.SweepExpired(now.Add(2 * time.Minute))
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != req.ID {
		t.Fatalf("expected the request to expire, got %v", expired)
	}

	recs, _ := trail.Query(audit.Filter{})
	if len(recs) != 1 {
		t.Fatalf("expected 1 expiry record, got %d", len(recs))
	}
	if recs[0].ToState != "expired" || recs[0].ApprovalID != req.ID {
		t.Errorf("unexpected expiry record: %+v", recs[0])
	}
}

func TestWorkflowGetUnknown(t *testing.T) {
	w, _ := newTestWorkflow(t, 0)
	if _, err := w.Get("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
