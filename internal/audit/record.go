package audit

import "time"

// Kind distinguishes the two events the trail records.
type Kind string

const (
	// KindEvaluation is one boundary evaluation (exactly one per Evaluate call).
	KindEvaluation Kind = "evaluation"
	// KindApproval is one approval state transition (approve, reject, expire).
	KindApproval Kind = "approval"
)

// TimestampLayout is the wire format for record timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is one immutable line in the hash-chained JSONL audit log.
// All fields are flat values (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Record struct {
	Timestamp  string   `json:"ts"`
	Kind       Kind     `json:"kind"`
	Boundary   string   `json:"boundary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Action     string   `json:"action"`
	Reason     string   `json:"reason"`
	Pattern    string   `json:"pattern,omitempty"`
	PolicyHash string   `json:"policy_hash,omitempty"`
	ApprovalID string   `json:"approval_id,omitempty"`
	Actor      string   `json:"actor,omitempty"`
	Note       string   `json:"note,omitempty"`
	FromState  string   `json:"from_state,omitempty"`
	ToState    string   `json:"to_state,omitempty"`
	PrevHash   string   `json:"prev_hash"`
}

// Time parses the record timestamp. Returns the zero time on parse failure.
func (r Record) Time() time.Time {
	t, err := time.Parse(TimestampLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
