package policydiff

import (
	"strings"
	"testing"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/model"
	"github.com/mvoronin/perimeter/internal/policy"
)

func baseFile() *policy.File {
	return &policy.File{
		Rules: []model.PolicyRule{
			{
				Pattern:    "secrets/*",
				Boundaries: []model.Boundary{model.BoundaryAction, model.BoundaryOutput},
				Priority:   10,
				Action:     model.ActionBlock,
				Reason:     "no secrets",
			},
			{
				Pattern:    "pii/*",
				Boundaries: []model.Boundary{model.BoundaryOutput},
				Priority:   20,
				Action:     model.ActionRedact,
			},
		},
		Alerts: []alert.Config{
			{URL: "https://hooks.example.com/a", Events: []string{"block"}},
		},
	}
}

func TestIdenticalFilesNoChanges(t *testing.T) {
	r := Diff(baseFile(), baseFile())
	if r.HasChanges {
		t.Errorf("expected no changes, got %d rule + %d alert changes",
			len(r.RuleChanges), len(r.AlertChanges))
	}
}

func TestChangedActionDetected(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Rules[0].Action = model.ActionRequireApproval

	r := Diff(old, new)
	if !r.HasChanges {
		t.Fatal("expected changes")
	}
	if len(r.RuleChanges) != 1 || r.RuleChanges[0].Type != "changed" {
		t.Fatalf("unexpected rule changes: %+v", r.RuleChanges)
	}
	if !strings.Contains(r.RuleChanges[0].Rule, "was: block") {
		t.Errorf("expected old action in label, got %q", r.RuleChanges[0].Rule)
	}
}

func TestChangedPriorityDetected(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Rules[1].Priority = 5

	r := Diff(old, new)
	if len(r.RuleChanges) != 1 || !strings.Contains(r.RuleChanges[0].Rule, "priority 5") {
		t.Fatalf("unexpected rule changes: %+v", r.RuleChanges)
	}
}

func TestAddedAndRemovedRules(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Rules = append(new.Rules[:1], model.PolicyRule{
		Pattern:    "exec/destructive",
		Boundaries: []model.Boundary{model.BoundaryAction},
		Priority:   30,
		Action:     model.ActionRequireApproval,
	})

	r := Diff(old, new)
	var added, removed int
	for _, rc := range r.RuleChanges {
		switch rc.Type {
		case "added":
			added++
		case "removed":
			removed++
		}
	}
	if added != 1 || removed != 1 {
		t.Fatalf("expected 1 added and 1 removed, got %+v", r.RuleChanges)
	}
}

func TestBoundarySetIsPartOfIdentity(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Rules[1].Boundaries = []model.Boundary{model.BoundaryOutput, model.BoundaryInput}

	// Same pattern, different boundary set: removed + added, not changed.
	r := Diff(old, new)
	if len(r.RuleChanges) != 2 {
		t.Fatalf("expected 2 rule changes, got %+v", r.RuleChanges)
	}
}

func TestAlertTargetChanges(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Alerts = []alert.Config{
		{URL: "https://hooks.example.com/b", Events: []string{"block"}},
	}

	r := Diff(old, new)
	if len(r.AlertChanges) != 2 {
		t.Fatalf("expected added and removed alert, got %+v", r.AlertChanges)
	}
}

func TestFormatText(t *testing.T) {
	old := baseFile()
	new := baseFile()
	new.Rules[0].Action = model.ActionAllow

	out := FormatText(Diff(old, new))
	if !strings.Contains(out, "~ pattern=secrets/*") {
		t.Errorf("unexpected text output:\n%s", out)
	}

	out = FormatText(Diff(old, old))
	if !strings.Contains(out, "No changes detected") {
		t.Errorf("unexpected no-change output:\n%s", out)
	}
}
