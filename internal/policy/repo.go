// Package policy holds the loaded rule set and answers the question at the
// heart of every boundary evaluation: given this tag set, which rule wins?
package policy

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/tag"
)

// DefaultAllowReason is the reason attached to the implicit decision
// returned when no loaded rule matches a submission.
const DefaultAllowReason = "no policy matched; default allow"

// ConfigError reports a malformed or ambiguous rule set, detected at load
// time. The previously active rule set stays in force.
type ConfigError struct {
	Boundary model.Boundary
	Pattern  string
	Priority int
	Detail   string
}

func (e *ConfigError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("policy config: %s (boundary=%s pattern=%q priority=%d)",
			e.Detail, e.Boundary, e.Pattern, e.Priority)
	}
	return "policy config: " + e.Detail
}

// compiledRule is a loaded rule plus derived match metadata.
type compiledRule struct {
	rule        model.PolicyRule
	order       int // insertion position, final tie-break
	specificity int
	wildcard    bool
}

// snapshot is one immutable version of the rule set. Built once at load,
// then only read.
type snapshot struct {
	rules   []model.PolicyRule
	version uint64
	// index maps boundary → pattern → rules with that exact pattern.
	// Lookup probes the candidate patterns of each submitted tag, so the
	// cost per tag is its segment count, not the rule count.
	index map[model.Boundary]map[string][]*compiledRule
}

// Repository holds the active rule set. Resolve is safe for unlimited
// concurrent readers; Load swaps a fully built snapshot atomically, so a
// reader observes either the old or the new rule set, never a mix.
type Repository struct {
	loadMu sync.Mutex
	snap   atomic.Pointer[snapshot]
}

// NewRepository returns a Repository with an empty rule set. Until Load
// succeeds, every submission resolves to the implicit default allow.
func NewRepository() *Repository {
	r := &Repository{}
	r.snap.Store(&snapshot{index: map[model.Boundary]map[string][]*compiledRule{}})
	return r
}

// Load validates and atomically activates a new rule set, replacing the
// previous one. Two rules sharing identical (boundary, pattern, priority)
// are an ambiguous tie and rejected with a ConfigError; on any error the
// previously active set remains in force.
func (r *Repository) Load(rules []model.PolicyRule) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	next, err := build(rules)
	if err != nil {
		return err
	}
	next.version = r.snap.Load().version + 1
	r.snap.Store(next)
	return nil
}

// Version returns the monotonic version of the active snapshot. Starts at 0
// for the empty set and increments on every successful Load.
func (r *Repository) Version() uint64 {
	return r.snap.Load().version
}

// Rules returns a copy of the active rule set in insertion order.
func (r *Repository) Rules() []model.PolicyRule {
	s := r.snap.Load()
	out := make([]model.PolicyRule, len(s.rules))
	copy(out, s.rules)
	return out
}

func build(rules []model.PolicyRule) (*snapshot, error) {
	s := &snapshot{
		rules: make([]model.PolicyRule, len(rules)),
		index: make(map[model.Boundary]map[string][]*compiledRule),
	}
	copy(s.rules, rules)

	type key struct {
		boundary model.Boundary
		pattern  string
		priority int
	}
	seen := make(map[key]bool)

	for i, rule := range s.rules {
		if !tag.ValidPattern(rule.Pattern) {
			return nil, &ConfigError{Pattern: rule.Pattern, Priority: rule.Priority,
				Detail: "invalid tag pattern"}
		}
		if !rule.Action.Valid() {
			return nil, &ConfigError{Pattern: rule.Pattern, Priority: rule.Priority,
				Detail: fmt.Sprintf("invalid action %q", rule.Action)}
		}
		if len(rule.Boundaries) == 0 {
			return nil, &ConfigError{Pattern: rule.Pattern, Priority: rule.Priority,
				Detail: "rule covers no boundaries"}
		}

		cr := &compiledRule{
			rule:        s.rules[i],
			order:       i,
			specificity: tag.Specificity(rule.Pattern),
			wildcard:    tag.IsWildcard(rule.Pattern),
		}

		for _, b := range rule.Boundaries {
			if !b.Valid() {
				return nil, &ConfigError{Boundary: b, Pattern: rule.Pattern, Priority: rule.Priority,
					Detail: fmt.Sprintf("invalid boundary %q", b)}
			}
			k := key{b, rule.Pattern, rule.Priority}
			if seen[k] {
				return nil, &ConfigError{Boundary: b, Pattern: rule.Pattern, Priority: rule.Priority,
					Detail: "duplicate (boundary, pattern, priority): ambiguous tie"}
			}
			seen[k] = true

			byPattern := s.index[b]
			if byPattern == nil {
				byPattern = make(map[string][]*compiledRule)
				s.index[b] = byPattern
			}
			byPattern[rule.Pattern] = append(byPattern[rule.Pattern], cr)
		}
	}

	return s, nil
}

// Resolve returns the Decision for the given boundary and tag set. Among
// rules covering the boundary whose pattern matches at least one tag, the
// lowest priority number wins; equal priorities are broken by pattern
// specificity (more literal segments, then exact over wildcard) and finally
// by insertion order, so identical inputs always yield identical Decisions.
// When nothing matches, the implicit default allow applies.
func (r *Repository) Resolve(boundary model.Boundary, tags []string) model.Decision {
	s := r.snap.Load()

	byPattern := s.index[boundary]
	var matched []*compiledRule
	dedupe := make(map[int]bool)

	for _, t := range tags {
		for _, pattern := range tag.Candidates(t) {
			for _, cr := range byPattern[pattern] {
				if !dedupe[cr.order] {
					dedupe[cr.order] = true
					matched = append(matched, cr)
				}
			}
		}
	}

	if len(matched) == 0 {
		return model.Decision{Action: model.ActionAllow, Reason: DefaultAllowReason}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.rule.Priority != b.rule.Priority {
			return a.rule.Priority < b.rule.Priority
		}
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		if a.wildcard != b.wildcard {
			return !a.wildcard
		}
		return a.order < b.order
	})

	win := matched[0]
	rule := win.rule
	reason := rule.Reason
	if reason == "" {
		reason = fmt.Sprintf("rule %q (priority %d) requires %s", rule.Pattern, rule.Priority, rule.Action)
	}
	return model.Decision{Action: rule.Action, Rule: &rule, Reason: reason}
}
