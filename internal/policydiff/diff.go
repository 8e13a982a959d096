// Package policydiff compares two policy files and reports what changed
// in enforcement terms: rules added, removed, or reordered, and alert
// targets wired in or out.
package policydiff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/policy"
)

// RuleChange represents a rule addition, removal, or modification.
type RuleChange struct {
	Type string `json:"type"` // "added", "removed", "changed"
	Rule string `json:"rule"`
}

// AlertChange represents an alert target addition or removal.
type AlertChange struct {
	Type string `json:"type"` // "added", "removed"
	URL  string `json:"url"`
}

// DiffResult holds the comparison of two policy files.
type DiffResult struct {
	OldPath      string        `json:"old_path"`
	NewPath      string        `json:"new_path"`
	RuleChanges  []RuleChange  `json:"rule_changes"`
	AlertChanges []AlertChange `json:"alert_changes"`
	HasChanges   bool          `json:"has_changes"`
}

// Diff compares two policy files and returns the differences.
func Diff(old, new *policy.File) *DiffResult {
	r := &DiffResult{}
	diffRules(r, old.Rules, new.Rules)
	diffAlerts(r, old.Alerts, new.Alerts)
	r.HasChanges = len(r.RuleChanges) > 0 || len(r.AlertChanges) > 0
	return r
}

// ruleKey identifies a rule across edits. Pattern and boundary set name
// what the rule governs; action, priority, and reason are its settings.
func ruleKey(r model.PolicyRule) string {
	return r.Pattern + "|" + boundaryLabel(r.Boundaries)
}

func boundaryLabel(bs []model.Boundary) string {
	names := make([]string, 0, len(bs))
	for _, b := range bs {
		names = append(names, string(b))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func ruleLabel(r model.PolicyRule) string {
	return fmt.Sprintf("pattern=%s boundaries=%s priority=%d", r.Pattern, boundaryLabel(r.Boundaries), r.Priority)
}

func diffRules(r *DiffResult, oldRules, newRules []model.PolicyRule) {
	oldMap := make(map[string]model.PolicyRule)
	for _, rule := range oldRules {
		oldMap[ruleKey(rule)] = rule
	}

	newMap := make(map[string]model.PolicyRule)
	for _, rule := range newRules {
		newMap[ruleKey(rule)] = rule
	}

	for _, rule := range newRules {
		k := ruleKey(rule)
		oldRule, exists := oldMap[k]
		if !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "added",
				Rule: fmt.Sprintf("%s → %s", ruleLabel(rule), rule.Action),
			})
			continue
		}
		switch {
		case oldRule.Action != rule.Action:
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s → %s (was: %s)", ruleLabel(rule), rule.Action, oldRule.Action),
			})
		case oldRule.Priority != rule.Priority:
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s → priority %d (was: %d)", ruleLabel(rule), rule.Priority, oldRule.Priority),
			})
		case oldRule.Reason != rule.Reason:
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s → reason %q (was: %q)", ruleLabel(rule), rule.Reason, oldRule.Reason),
			})
		}
	}

	for _, rule := range oldRules {
		if _, exists := newMap[ruleKey(rule)]; !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "removed",
				Rule: fmt.Sprintf("%s → %s", ruleLabel(rule), rule.Action),
			})
		}
	}
}

func diffAlerts(r *DiffResult, old, new []alert.Config) {
	oldSet := make(map[string]bool)
	for _, a := range old {
		oldSet[a.URL] = true
	}
	newSet := make(map[string]bool)
	for _, a := range new {
		newSet[a.URL] = true
	}

	for _, a := range new {
		if !oldSet[a.URL] {
			r.AlertChanges = append(r.AlertChanges, AlertChange{Type: "added", URL: a.URL})
		}
	}
	for _, a := range old {
		if !newSet[a.URL] {
			r.AlertChanges = append(r.AlertChanges, AlertChange{Type: "removed", URL: a.URL})
		}
	}
}
