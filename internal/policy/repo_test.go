package policy

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/mvoronin/perimeter/internal/model"
)

func mustLoad(t *testing.T, rules []model.PolicyRule) *Repository {
	t.Helper()
	r := NewRepository()
	if err := r.Load(rules); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return r
}

func TestResolveDefaultAllow(t *testing.T) {
	r := NewRepository()

	d := r.Resolve(model.BoundaryInput, []string{"secrets/api_key"})
	if d.Action != model.ActionAllow {
		t.Errorf("expected allow, got %s", d.Action)
	}
	if d.Rule != nil {
		t.Errorf("expected no backing rule, got %+v", d.Rule)
	}
	if d.Reason != DefaultAllowReason {
		t.Errorf("expected %q, got %q", DefaultAllowReason, d.Reason)
	}
}

func TestResolvePriorityOrdering(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionBlock},
		{Pattern: "*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 100, Action: model.ActionAllow},
	})

	d := r.Resolve(model.BoundaryAction, []string{"secrets/api_key"})
	if d.Action != model.ActionBlock {
		t.Errorf("expected block (priority 1), got %s", d.Action)
	}
	if d.Rule == nil || d.Rule.Pattern != "secrets/*" {
		t.Errorf("expected secrets/* rule to win, got %+v", d.Rule)
	}
}

func TestResolveWildcardHierarchy(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "pii/*", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 20, Action: model.ActionRedact},
	})

	for _, tg := range []string{"pii/email", "pii/phone", "pii/address/street"} {
		d := r.Resolve(model.BoundaryOutput, []string{tg})
		if d.Action != model.ActionRedact {
			t.Errorf("tag %q: expected redact, got %s", tg, d.Action)
		}
	}

	// A bare "pii" tag is not covered by pii/*.
	d := r.Resolve(model.BoundaryOutput, []string{"pii"})
	if d.Action != model.ActionAllow || d.Rule != nil {
		t.Errorf("bare pii: expected implicit allow, got %s (rule %+v)", d.Action, d.Rule)
	}
}

func TestResolveSpecificityTieBreak(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "pii/*", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 5, Action: model.ActionBlock},
		{Pattern: "pii/email", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 5, Action: model.ActionAllow},
	})

	d := r.Resolve(model.BoundaryOutput, []string{"pii/email"})
	if d.Action != model.ActionAllow {
		t.Errorf("exact pattern should beat wildcard at equal priority, got %s", d.Action)
	}
}

func TestResolveInsertionOrderTieBreak(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "pii/email", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 5, Action: model.ActionBlock},
		{Pattern: "pii/phone", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 5, Action: model.ActionAllow},
	})

	// Both match (different tags), same priority, same specificity:
	// the earlier-loaded rule wins.
	d := r.Resolve(model.BoundaryOutput, []string{"pii/email", "pii/phone"})
	if d.Action != model.ActionBlock {
		t.Errorf("expected first-loaded rule to win, got %s", d.Action)
	}
}

func TestResolveBoundaryScoping(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryOutput}, Priority: 1, Action: model.ActionBlock},
	})

	d := r.Resolve(model.BoundaryInput, []string{"secrets/api_key"})
	if d.Action != model.ActionAllow {
		t.Errorf("rule scoped to output must not fire on input, got %s", d.Action)
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionBlock, Reason: "no secrets"},
		{Pattern: "pii/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionRedact},
		{Pattern: "*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 50, Action: model.ActionAllow},
	})

	tags := []string{"pii/email", "secrets/api_key", "misc/note"}
	first := r.Resolve(model.BoundaryAction, tags)
	for i := 0; i < 100; i++ {
		if d := r.Resolve(model.BoundaryAction, tags); !reflect.DeepEqual(d, first) {
			t.Fatalf("resolve not deterministic: run %d got %+v, first %+v", i, d, first)
		}
	}
}

func TestLoadRejectsDuplicateTriple(t *testing.T) {
	r := NewRepository()
	err := r.Load([]model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 10, Action: model.ActionBlock},
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 10, Action: model.ActionAllow},
	})

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Pattern != "secrets/*" || cfgErr.Priority != 10 {
		t.Errorf("error should name the offending rule, got %+v", cfgErr)
	}
}

func TestLoadFailureKeepsPreviousSet(t *testing.T) {
	r := mustLoad(t, []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionBlock},
	})
	v := r.Version()

	err := r.Load([]model.PolicyRule{
		{Pattern: "not a valid pattern//", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionBlock},
	})
	if err == nil {
		t.Fatal("expected load error")
	}

	if r.Version() != v {
		t.Errorf("failed load must not bump version: was %d, now %d", v, r.Version())
	}
	d := r.Resolve(model.BoundaryAction, []string{"secrets/api_key"})
	if d.Action != model.ActionBlock {
		t.Errorf("previous rule set should stay active, got %s", d.Action)
	}
}

func TestLoadRejectsInvalidAction(t *testing.T) {
	r := NewRepository()
	err := r.Load([]model.PolicyRule{
		{Pattern: "*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: "deny"},
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadRejectsInvalidBoundary(t *testing.T) {
	r := NewRepository()
	err := r.Load([]model.PolicyRule{
		{Pattern: "*", Boundaries: []model.Boundary{"egress"}, Priority: 1, Action: model.ActionBlock},
	})
	if err == nil {
		t.Fatal("expected error for unknown boundary")
	}
}

func TestLoadRejectsEmptyBoundaries(t *testing.T) {
	r := NewRepository()
	err := r.Load([]model.PolicyRule{
		{Pattern: "*", Priority: 1, Action: model.ActionBlock},
	})
	if err == nil {
		t.Fatal("expected error for rule with no boundaries")
	}
}

func TestConcurrentResolveAndLoad(t *testing.T) {
	blockSet := []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionBlock, Reason: "v-block"},
	}
	approvalSet := []model.PolicyRule{
		{Pattern: "secrets/*", Boundaries: []model.Boundary{model.BoundaryAction}, Priority: 1, Action: model.ActionRequireApproval, Reason: "v-approval"},
	}

	r := mustLoad(t, blockSet)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				d := r.Resolve(model.BoundaryAction, []string{"secrets/api_key"})
				// Every observation must be a fully consistent snapshot.
				switch d.Action {
				case model.ActionBlock:
					if d.Reason != "v-block" {
						t.Errorf("torn snapshot: block with reason %q", d.Reason)
						return
					}
				case model.ActionRequireApproval:
					if d.Reason != "v-approval" {
						t.Errorf("torn snapshot: require_approval with reason %q", d.Reason)
						return
					}
				default:
					t.Errorf("unexpected decision %s", d.Action)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		set := blockSet
		if i%2 == 1 {
			set = approvalSet
		}
		if err := r.Load(set); err != nil {
			t.Fatalf("Load failed mid-swap: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
