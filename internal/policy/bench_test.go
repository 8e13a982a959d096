package policy

import (
	"fmt"
	"testing"

	"github.com/mvoronin/perimeter/internal/model"
)

// Resolve is on the hot path of every tool call; the index should keep
// lookup cost proportional to tag depth, not rule count.
func BenchmarkResolveLargeRuleSet(b *testing.B) {
	rules := make([]model.PolicyRule, 0, 1001)
	for i := 0; i < 1000; i++ {
		rules = append(rules, model.PolicyRule{
			Pattern:    fmt.Sprintf("category%d/*", i),
			Boundaries: []model.Boundary{model.BoundaryAction},
			Priority:   i,
			Action:     model.ActionBlock,
		})
	}
	rules = append(rules, model.PolicyRule{
		Pattern:    "*",
		Boundaries: []model.Boundary{model.BoundaryAction},
		Priority:   10000,
		Action:     model.ActionAllow,
	})

	r := NewRepository()
	if err := r.Load(rules); err != nil {
		b.Fatalf("Load failed: %v", err)
	}

	tags := []string{"category500/item", "secrets/api_key"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Resolve(model.BoundaryAction, tags)
	}
}
