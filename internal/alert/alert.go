// Package alert fans out enforcement events to webhook destinations.
// Dispatch is fire-and-forget: a slow or failing webhook never delays or
// fails the evaluation that triggered it.
package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack"
	Events  []string          `yaml:"events"  json:"events"` // ["block", "require_approval", "rejected", ...]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	Boundary   string   `json:"boundary"`
	Tags       []string `json:"tags,omitempty"`
	Decision   string   `json:"decision"`
	Reason     string   `json:"reason"`
	ApprovalID string   `json:"approval_id,omitempty"`
	PolicyHash string   `json:"policy_hash,omitempty"`
}

// Dispatcher fans out events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch sends the event to all webhooks whose Events list includes the
// event's decision. Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go Send(cfg, event)
		}
	}
}

func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Decision {
			return true
		}
	}
	return false
}
