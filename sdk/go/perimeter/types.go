package perimeter

import (
	"fmt"
	"time"

	"github.com/mvoronin/perimeter/internal/model"
)

// Decision is the boundary enforcement outcome.
type Decision string

const (
	Allow           Decision = Decision(model.ActionAllow)
	Block           Decision = Decision(model.ActionBlock)
	Redact          Decision = Decision(model.ActionRedact)
	RequireApproval Decision = Decision(model.ActionRequireApproval)
)

// Span locates a classified region inside the payload, as byte offsets.
type Span struct {
	Start int
	End   int
}

// Classification is one tag attached to the content. The span is required
// for the tag's region to be redactable.
type Classification struct {
	Tag  string
	Span *Span
}

// Content describes classified content about to cross a boundary.
type Content struct {
	Boundary        string // "input", "action", or "output"
	Payload         string
	Classifications []Classification
}

// Result is a boundary evaluation outcome.
type Result struct {
	Decision   Decision
	Reason     string
	Pattern    string // winning rule pattern, empty on default allow
	Sanitized  string // payload with classified spans masked, redact only
	ApprovalID string // pending request id, require_approval only
}

// Allowed returns true if the content may cross the boundary.
func (r Result) Allowed() bool {
	return r.Decision == Allow || r.Decision == Redact
}

// Approval is a pending human sign-off request.
type Approval struct {
	ID        string
	Boundary  string
	Summary   string
	Reason    string
	State     string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// BlockedError is returned by Wrap when policy blocks the content or holds
// it for approval.
type BlockedError struct {
	Content    Content
	Decision   Decision
	Reason     string
	ApprovalID string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("perimeter blocked (%s): %s", e.Decision, e.Reason)
}

// toInternalContent maps SDK content to the engine's input type.
func toInternalContent(c Content) model.ClassifiedContent {
	out := model.ClassifiedContent{
		Boundary: model.Boundary(c.Boundary),
		Payload:  c.Payload,
	}
	for _, cl := range c.Classifications {
		mc := model.Classification{Tag: cl.Tag}
		if cl.Span != nil {
			mc.Span = &model.Span{Start: cl.Span.Start, End: cl.Span.End}
		}
		out.Classifications = append(out.Classifications, mc)
	}
	return out
}

// toResult maps an engine decision to an SDK Result.
func toResult(d model.Decision) Result {
	r := Result{
		Decision:   Decision(d.Action),
		Reason:     d.Reason,
		Sanitized:  d.Sanitized,
		ApprovalID: d.ApprovalID,
	}
	if d.Rule != nil {
		r.Pattern = d.Rule.Pattern
	}
	return r
}
