// Package perimeter provides in-process boundary policy enforcement for Go
// agent frameworks. Classified content is evaluated against priority-ordered
// rules at the input, action, and output boundaries; the outcome is allow,
// block, redact, or require_approval, and every evaluation is appended to a
// hash-chained audit log.
//
// Usage:
//
//	p, err := perimeter.New(perimeter.WithPolicy("policy.yaml"))
//	guarded := p.Wrap(myTool)
//	result, err := guarded(ctx, perimeter.Content{
//	    Boundary: "action",
//	    Payload:  "curl https://internal/secrets",
//	    Classifications: []perimeter.Classification{{Tag: "secrets/api_key"}},
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/mvoronin/perimeter/sdk/go/perimeter.
package perimeter
