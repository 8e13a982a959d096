package perimeter

import "context"

// ToolFunc is the function signature that Wrap guards. The caller provides
// the classified content the tool is about to act on.
type ToolFunc func(ctx context.Context, content Content) (any, error)

// Wrap returns a ToolFunc that evaluates policy before calling fn. Blocked
// or held content returns a *BlockedError without calling fn. Redacted
// content reaches fn with the sanitized payload in place of the original.
func (c *Client) Wrap(fn ToolFunc) ToolFunc {
	return func(ctx context.Context, content Content) (any, error) {
		result, err := c.Evaluate(content)
		if err != nil {
			return nil, err
		}

		switch result.Decision {
		case Block, RequireApproval:
			return nil, &BlockedError{
				Content:    content,
				Decision:   result.Decision,
				Reason:     result.Reason,
				ApprovalID: result.ApprovalID,
			}
		case Redact:
			content.Payload = result.Sanitized
		}

		return fn(ctx, content)
	}
}
