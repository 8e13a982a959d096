package mcp

import (
	"context"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mvoronin/perimeter/internal/approval"
	"github.com/mvoronin/perimeter/internal/audit"
	"github.com/mvoronin/perimeter/internal/engine"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/redact"
)

// --- Input/Output types ---

// SpanInput locates a classified region inside the payload.
type SpanInput struct {
	Start int `json:"start" jsonschema:"byte offset of the first classified byte"`
	End   int `json:"end" jsonschema:"byte offset one past the last classified byte"`
}

// ClassificationInput is one tag attached to the content.
type ClassificationInput struct {
	Tag  string     `json:"tag" jsonschema:"hierarchical classification tag, e.g. pii/email"`
	Span *SpanInput `json:"span,omitempty" jsonschema:"payload region the tag covers, required for redaction"`
}

// EvaluateInput defines parameters for the perimeter_evaluate tool.
type EvaluateInput struct {
	Boundary        string                `json:"boundary" jsonschema:"boundary being crossed (input/action/output)"`
	Payload         string                `json:"payload,omitempty" jsonschema:"content crossing the boundary"`
	Classifications []ClassificationInput `json:"classifications,omitempty" jsonschema:"tags attached to the content"`
}

// EvaluateOutput contains the boundary decision.
type EvaluateOutput struct {
	Action     string `json:"action"`
	Reason     string `json:"reason"`
	Pattern    string `json:"pattern,omitempty"`
	Sanitized  string `json:"sanitized,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

// ResolveInput defines parameters for the approve and reject tools.
type ResolveInput struct {
	ID    string `json:"id" jsonschema:"approval request id"`
	Actor string `json:"actor" jsonschema:"who is resolving the request"`
	Note  string `json:"note,omitempty" jsonschema:"optional resolution note"`
}

// ResolveOutput confirms the resolution.
type ResolveOutput struct {
	ID    string `json:"id"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// PendingInput is empty, the tool takes no parameters.
type PendingInput struct{}

// PendingOutput lists all pending approval requests.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	ID        string `json:"id"`
	Boundary  string `json:"boundary"`
	Summary   string `json:"summary"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// AuditTailInput defines parameters for the perimeter_audit_tail tool.
type AuditTailInput struct {
	Boundary string `json:"boundary,omitempty" jsonschema:"only records for this boundary"`
	Action   string `json:"action,omitempty" jsonschema:"only records with this decision"`
	Limit    int    `json:"limit,omitempty" jsonschema:"most recent N records, default 20"`
}

// AuditTailOutput contains the matching audit records.
type AuditTailOutput struct {
	Records []audit.Record `json:"records"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	content := model.ClassifiedContent{
		Boundary: model.Boundary(input.Boundary),
		Payload:  input.Payload,
	}
	for _, c := range input.Classifications {
		mc := model.Classification{Tag: c.Tag}
		if c.Span != nil {
			mc.Span = &model.Span{Start: c.Span.Start, End: c.Span.End}
		}
		content.Classifications = append(content.Classifications, mc)
	}

	decision, err := s.engine.Evaluate(content)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidBoundary) ||
			errors.Is(err, redact.ErrOverlappingSpan) ||
			errors.Is(err, redact.ErrInvalidSpan) {
			return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{Reason: err.Error()}, nil
		}
		return nil, EvaluateOutput{}, err
	}

	out := EvaluateOutput{
		Action:     string(decision.Action),
		Reason:     decision.Reason,
		Sanitized:  decision.Sanitized,
		ApprovalID: decision.ApprovalID,
	}
	if decision.Rule != nil {
		out.Pattern = decision.Rule.Pattern
	}
	return nil, out, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	return s.resolve(input, s.workflow.Approve)
}

func (s *Server) handleReject(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	return s.resolve(input, s.workflow.Reject)
}

func (s *Server) resolve(input ResolveInput, fn func(id, actor, note string) (*approval.Request, error)) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	if input.Actor == "" {
		return &mcpsdk.CallToolResult{IsError: true}, ResolveOutput{ID: input.ID, Error: "actor is required"}, nil
	}
	req, err := fn(input.ID, input.Actor, input.Note)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) || errors.Is(err, approval.ErrAlreadyResolved) {
			return &mcpsdk.CallToolResult{IsError: true}, ResolveOutput{ID: input.ID, Error: err.Error()}, nil
		}
		return nil, ResolveOutput{}, err
	}
	return nil, ResolveOutput{ID: req.ID, State: string(req.State)}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	reqs, err := s.workflow.Pending()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	out := PendingOutput{Approvals: []PendingItem{}}
	for _, r := range reqs {
		item := PendingItem{
			ID:        r.ID,
			Boundary:  r.Boundary,
			Summary:   r.Summary,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if r.ExpiresAt != nil {
			item.ExpiresAt = r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		out.Approvals = append(out.Approvals, item)
	}
	return nil, out, nil
}

func (s *Server) handleAuditTail(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditTailInput) (*mcpsdk.CallToolResult, AuditTailOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	recs, err := s.trail.Query(audit.Filter{
		Boundary: input.Boundary,
		Action:   input.Action,
		Limit:    limit,
	})
	if err != nil {
		return nil, AuditTailOutput{}, err
	}
	return nil, AuditTailOutput{Records: recs}, nil
}
