package perimeter

import "time"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	policyPath     string
	auditLogPath   string
	approvalDBPath string
	approvalTTL    time.Duration
}

// WithPolicy sets the path to a policy YAML file.
func WithPolicy(path string) Option {
	return func(c *clientConfig) { c.policyPath = path }
}

// WithAuditLog sets the path to the audit log JSONL file.
func WithAuditLog(path string) Option {
	return func(c *clientConfig) { c.auditLogPath = path }
}

// WithApprovalDB sets the path to the approval database.
func WithApprovalDB(path string) Option {
	return func(c *clientConfig) { c.approvalDBPath = path }
}

// WithApprovalTTL sets how long pending approvals live before expiring.
// Zero means they never expire.
func WithApprovalTTL(ttl time.Duration) Option {
	return func(c *clientConfig) { c.approvalTTL = ttl }
}
