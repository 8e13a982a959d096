package perimeter

import (
	"context"
	"errors"
	"testing"
)

func TestWrapBlocksDenied(t *testing.T) {
	c := newTestClient(t)
	called := false
	inner := func(ctx context.Context, content Content) (any, error) {
		called = true
		return nil, nil
	}
	wrapped := c.Wrap(inner)

	_, err := wrapped(context.Background(), Content{
		Boundary:        "action",
		Classifications: []Classification{{Tag: "secrets/api_key"}},
	})

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %T: %v", err, err)
	}
	if blocked.Decision != Block {
		t.Errorf("expected block, got %s", blocked.Decision)
	}
	if called {
		t.Error("inner function should not be called on block")
	}
}

func TestWrapAllowsClean(t *testing.T) {
	c := newTestClient(t)
	inner := func(ctx context.Context, content Content) (any, error) {
		return "ok", nil
	}
	wrapped := c.Wrap(inner)

	result, err := wrapped(context.Background(), Content{
		Boundary:        "input",
		Classifications: []Classification{{Tag: "misc/note"}},
	})
	if err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected inner result, got %v", result)
	}
}

func TestWrapHoldsForApproval(t *testing.T) {
	c := newTestClient(t)
	inner := func(ctx context.Context, content Content) (any, error) {
		t.Fatal("inner function must not run while approval is pending")
		return nil, nil
	}
	wrapped := c.Wrap(inner)

	_, err := wrapped(context.Background(), Content{
		Boundary:        "action",
		Classifications: []Classification{{Tag: "exec/destructive"}},
	})

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %T: %v", err, err)
	}
	if blocked.Decision != RequireApproval || blocked.ApprovalID == "" {
		t.Errorf("unexpected block details: %+v", blocked)
	}
}

func TestWrapPassesSanitizedPayload(t *testing.T) {
	c := newTestClient(t)
	var seen string
	inner := func(ctx context.Context, content Content) (any, error) {
		seen = content.Payload
		return nil, nil
	}
	wrapped := c.Wrap(inner)

	_, err := wrapped(context.Background(), Content{
		Boundary: "output",
		Payload:  "mail me at a@b.co today",
		Classifications: []Classification{
			{Tag: "pii/email", Span: &Span{Start: 11, End: 17}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "mail me at <<PII_EMAIL>> today" {
		t.Errorf("inner saw %q, want sanitized payload", seen)
	}
}
