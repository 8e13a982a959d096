package approval

import (
	"time"

	"github.com/google/uuid"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/audit"
)

// Workflow layers the audit contract over the store: every state transition
// appends one record capturing the before/after state, actor, and note.
// Request creation is covered by the originating evaluation's audit entry.
type Workflow struct {
	store  *Store
	trail  *audit.Log
	ttl    time.Duration
	alerts *alert.Dispatcher
}

// NewWorkflow wires a store to the audit trail. ttl > 0 gives every new
// request an expiry deadline; ttl == 0 means requests never expire.
func NewWorkflow(store *Store, trail *audit.Log, ttl time.Duration) *Workflow {
	return &Workflow{store: store, trail: trail, ttl: ttl}
}

// SetAlerts attaches a webhook dispatcher. Resolutions are then fanned out
// to webhooks subscribed to the resulting state ("approved", "rejected",
// "expired"). Call before the workflow is shared across goroutines.
func (w *Workflow) SetAlerts(d *alert.Dispatcher) {
	w.alerts = d
}

// Create inserts a new pending request for the given evaluation context and
// returns it with a fresh identifier.
func (w *Workflow) Create(boundary, summary, reason, pattern string, now time.Time) (*Request, error) {
	req := Request{
		ID:        uuid.NewString(),
		Boundary:  boundary,
		Summary:   summary,
		Reason:    reason,
		Pattern:   pattern,
		State:     StatePending,
		CreatedAt: now,
	}
	if w.ttl > 0 {
		deadline := now.Add(w.ttl)
		req.ExpiresAt = &deadline
	}

	if err := w.store.Create(req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Approve transitions a pending request to approved.
func (w *Workflow) Approve(id, actor, note string) (*Request, error) {
	return w.resolve(id, actor, note, StateApproved)
}

// Reject transitions a pending request to rejected.
func (w *Workflow) Reject(id, actor, note string) (*Request, error) {
	return w.resolve(id, actor, note, StateRejected)
}

func (w *Workflow) resolve(id, actor, note string, to State) (*Request, error) {
	req, err := w.store.Resolve(id, actor, note, to, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := w.recordTransition(req, StatePending); err != nil {
		// The transition is already durable; the unaudited record is the
		// failure being reported.
		return req, err
	}
	w.dispatchResolution(req)
	return req, nil
}

// SweepExpired expires every pending request past its deadline. The only
// transition not triggered by an external actor; the host schedules it.
func (w *Workflow) SweepExpired(now time.Time) ([]Request, error) {
	expired, err := w.store.SweepExpired(now)
	if err != nil {
		return expired, err
	}
	for i := range expired {
		if err := w.recordTransition(&expired[i], StatePending); err != nil {
			return expired, err
		}
		w.dispatchResolution(&expired[i])
	}
	return expired, nil
}

// Get returns the request with the given identifier.
func (w *Workflow) Get(id string) (*Request, error) {
	return w.store.Get(id)
}

// Pending returns all requests still awaiting resolution, newest first.
func (w *Workflow) Pending() ([]Request, error) {
	return w.store.List(StatePending)
}

func (w *Workflow) dispatchResolution(req *Request) {
	w.alerts.Dispatch(alert.Event{
		Timestamp:  time.Now().UTC().Format(audit.TimestampLayout),
		Boundary:   req.Boundary,
		Decision:   string(req.State),
		Reason:     req.Reason,
		ApprovalID: req.ID,
	})
}

func (w *Workflow) recordTransition(req *Request, from State) error {
	return w.trail.Append(audit.Record{
		Kind:       audit.KindApproval,
		Boundary:   req.Boundary,
		Action:     string(req.State),
		Reason:     req.Reason,
		Pattern:    req.Pattern,
		ApprovalID: req.ID,
		Actor:      req.Actor,
		Note:       req.Note,
		FromState:  string(from),
		ToState:    string(req.State),
	})
}
