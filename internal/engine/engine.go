// Package engine orchestrates one boundary evaluation: classification in,
// Decision out, exactly one audit record in between.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/policy"
	"github.com/mvoronin/perimeter/internal/redact"
	"github.com/mvoronin/perimeter/internal/tag"
)

// ErrInvalidBoundary indicates the submission named a boundary outside
// input, action, output. No evaluation happens and nothing is audited.
var ErrInvalidBoundary = errors.New("invalid boundary")

// Config wires an Engine. Repository, Approvals, and Trail are required;
// Alerts is optional.
type Config struct {
	Repository *policy.Repository
	Approvals  *approval.Workflow
	Trail      *audit.Log
	Alerts     *alert.Dispatcher
	PolicyHash string
}

// Engine is the decision resolver. Safe for concurrent use: evaluation
// reads one policy snapshot, and its side effects (audit append, approval
// creation) are individually synchronized.
type Engine struct {
	repo       *policy.Repository
	approvals  *approval.Workflow
	trail      *audit.Log
	alerts     *alert.Dispatcher
	policyHash atomic.Value // string, updated on hot reload
}

// New creates an Engine from the given wiring.
func New(cfg Config) *Engine {
	e := &Engine{
		repo:      cfg.Repository,
		approvals: cfg.Approvals,
		trail:     cfg.Trail,
		alerts:    cfg.Alerts,
	}
	e.policyHash.Store(cfg.PolicyHash)
	return e
}

// SetPolicyHash records the hash of the active policy file. Called after a
// hot reload so subsequent audit entries attribute decisions to the new
// policy version.
func (e *Engine) SetPolicyHash(hash string) {
	e.policyHash.Store(hash)
}

// PolicyHash returns the hash of the active policy file.
func (e *Engine) PolicyHash() string {
	h, _ := e.policyHash.Load().(string)
	return h
}

// Evaluate resolves one classified submission to a Decision. Exactly one
// audit record is appended per evaluation, regardless of outcome; if that
// append fails the evaluation fails with it: a decision that cannot be
// proven later must not proceed. Malformed submissions (unknown boundary,
// bad spans) are rejected before any evaluation and leave no audit entry.
func (e *Engine) Evaluate(content model.ClassifiedContent) (model.Decision, error) {
	if !content.Boundary.Valid() {
		return model.Decision{}, fmt.Errorf("%w: %q", ErrInvalidBoundary, content.Boundary)
	}

	tags := content.Tags()
	decision := e.repo.Resolve(content.Boundary, tags)

	switch decision.Action {
	case model.ActionRedact:
		sanitized, err := redact.Apply(content.Payload, spansFor(content, decision.Rule))
		if err != nil {
			return model.Decision{}, err
		}
		decision.Sanitized = sanitized

	case model.ActionRequireApproval:
		req, err := e.approvals.Create(
			string(content.Boundary), content.Summary(), decision.Reason,
			rulePattern(decision.Rule), time.Now().UTC(),
		)
		if err != nil {
			return model.Decision{}, fmt.Errorf("create approval request: %w", err)
		}
		decision.ApprovalID = req.ID
	}

	rec := audit.Record{
		Kind:       audit.KindEvaluation,
		Boundary:   string(content.Boundary),
		Tags:       tags,
		Action:     string(decision.Action),
		Reason:     decision.Reason,
		Pattern:    rulePattern(decision.Rule),
		PolicyHash: e.PolicyHash(),
		ApprovalID: decision.ApprovalID,
	}
	if err := e.trail.Append(rec); err != nil {
		return model.Decision{}, err
	}

	if decision.Action == model.ActionBlock || decision.Action == model.ActionRequireApproval {
		e.alerts.Dispatch(alert.Event{
			Timestamp:  time.Now().UTC().Format(audit.TimestampLayout),
			Boundary:   string(content.Boundary),
			Tags:       tags,
			Decision:   string(decision.Action),
			Reason:     decision.Reason,
			ApprovalID: decision.ApprovalID,
			PolicyHash: e.PolicyHash(),
		})
	}

	return decision, nil
}

// spansFor selects the redaction spans: classifications carrying a span
// whose tag matches the winning rule's pattern.
func spansFor(content model.ClassifiedContent, rule *model.PolicyRule) []redact.Span {
	if rule == nil {
		return nil
	}
	var spans []redact.Span
	for _, cl := range content.Classifications {
		if cl.Span == nil {
			continue
		}
		if tag.Matches(rule.Pattern, cl.Tag) {
			spans = append(spans, redact.Span{Start: cl.Span.Start, End: cl.Span.End, Tag: cl.Tag})
		}
	}
	return spans
}

func rulePattern(rule *model.PolicyRule) string {
	if rule == nil {
		return ""
	}
	return rule.Pattern
}
