package model

import "fmt"

// Boundary is one of the three points at which content is evaluated:
// into a model, a tool side-effect, or out of a model to a user.
type Boundary string

const (
	BoundaryInput  Boundary = "input"
	BoundaryAction Boundary = "action"
	BoundaryOutput Boundary = "output"
)

// Boundaries lists every recognized boundary, in evaluation-surface order.
var Boundaries = []Boundary{BoundaryInput, BoundaryAction, BoundaryOutput}

// Valid reports whether b is one of the three recognized boundaries.
func (b Boundary) Valid() bool {
	switch b {
	case BoundaryInput, BoundaryAction, BoundaryOutput:
		return true
	}
	return false
}

// ParseBoundary converts a string to a Boundary.
func ParseBoundary(s string) (Boundary, error) {
	b := Boundary(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown boundary %q (want input, action, or output)", s)
	}
	return b, nil
}

// RuleAction is the enforcement outcome a rule maps to.
type RuleAction string

const (
	ActionAllow           RuleAction = "allow"
	ActionBlock           RuleAction = "block"
	ActionRedact          RuleAction = "redact"
	ActionRequireApproval RuleAction = "require_approval"
)

// Valid reports whether a is one of the four recognized actions.
func (a RuleAction) Valid() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionRedact, ActionRequireApproval:
		return true
	}
	return false
}

// ParseRuleAction converts a string to a RuleAction.
func ParseRuleAction(s string) (RuleAction, error) {
	a := RuleAction(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q (want allow, block, redact, or require_approval)", s)
	}
	return a, nil
}

// PolicyRule maps a tag pattern (plus boundaries and priority) to an action.
// Lower priority numbers evaluate first.
type PolicyRule struct {
	Pattern    string     `json:"pattern" yaml:"pattern"`
	Boundaries []Boundary `json:"boundaries" yaml:"boundaries"`
	Priority   int        `json:"priority" yaml:"priority"`
	Action     RuleAction `json:"action" yaml:"action"`
	Reason     string     `json:"reason" yaml:"reason"`
}

// AppliesTo reports whether the rule covers the given boundary.
func (r PolicyRule) AppliesTo(b Boundary) bool {
	for _, rb := range r.Boundaries {
		if rb == b {
			return true
		}
	}
	return false
}

// Span is a half-open [Start, End) byte range within a payload.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Classification is one detector finding: a tag, optionally anchored to a
// byte span of the payload. Whole-action tags carry no span.
type Classification struct {
	Tag  string `json:"tag"`
	Span *Span  `json:"span,omitempty"`
}

// ClassifiedContent is the unit submitted for one boundary evaluation.
// Created fresh per call by the caller; the engine never mutates it.
type ClassifiedContent struct {
	Boundary        Boundary         `json:"boundary"`
	Classifications []Classification `json:"classifications"`
	Payload         string           `json:"payload"`
}

// Tags returns the distinct tags attached to the content, in first-seen order.
func (c ClassifiedContent) Tags() []string {
	seen := make(map[string]bool, len(c.Classifications))
	tags := make([]string, 0, len(c.Classifications))
	for _, cl := range c.Classifications {
		if !seen[cl.Tag] {
			seen[cl.Tag] = true
			tags = append(tags, cl.Tag)
		}
	}
	return tags
}

// Summary renders a short human-readable description of the content for
// approval queues and audit entries. The raw payload is never included.
func (c ClassifiedContent) Summary() string {
	return fmt.Sprintf("%s boundary, %d tags, %d bytes", c.Boundary, len(c.Tags()), len(c.Payload))
}

// Decision is the immutable outcome of one boundary evaluation.
// Rule is nil when no policy matched and the implicit default applied.
type Decision struct {
	Action     RuleAction  `json:"action"`
	Rule       *PolicyRule `json:"rule,omitempty"`
	Reason     string      `json:"reason"`
	Sanitized  string      `json:"sanitized,omitempty"`
	ApprovalID string      `json:"approval_id,omitempty"`
}
