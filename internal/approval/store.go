// Package approval tracks actions gated on a human decision. A request is
// created pending and transitions exactly once to approved, rejected, or
// expired; terminal states never reopen.
package approval

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates an unknown approval request identifier.
var ErrNotFound = errors.New("approval request not found")

// ErrAlreadyResolved indicates the request left pending before this call.
// Concurrent approve and reject on the same request resolve exactly one;
// the other gets this error.
var ErrAlreadyResolved = errors.New("approval request already resolved")

// State is the lifecycle position of an approval request.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateExpired  State = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected || s == StateExpired
}

// Request is one human-in-the-loop gate. Boundary, Summary, Reason, and
// Pattern describe the originating evaluation; Actor and Note are recorded
// at resolution.
type Request struct {
	ID         string     `json:"id"`
	Boundary   string     `json:"boundary"`
	Summary    string     `json:"summary"`
	Reason     string     `json:"reason"`
	Pattern    string     `json:"pattern,omitempty"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	Note       string     `json:"note,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS approvals (
	id          TEXT PRIMARY KEY,
	boundary    TEXT NOT NULL,
	summary     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	pattern     TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	expires_at  TEXT,
	resolved_at TEXT,
	actor       TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_approvals_state ON approvals(state);
`

// Store persists approval requests in a small sqlite table. The conditional
// UPDATE on state makes each per-id transition atomic and exclusive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the approval database at path. An empty path
// falls back to DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("approval: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("approval: open database: %w", err)
	}
	// Single connection sidesteps SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("approval: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DefaultPath returns the default approval database location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "perimeter-approvals.db")
	}
	return filepath.Join(home, ".perimeter", "approvals.db")
}

// Create inserts a new pending request.
func (s *Store) Create(req Request) error {
	if req.State == "" {
		req.State = StatePending
	}
	_, err := s.db.Exec(
		`INSERT INTO approvals (id, boundary, summary, reason, pattern, state, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Boundary, req.Summary, req.Reason, req.Pattern,
		string(req.State), encodeTime(req.CreatedAt), encodeTimePtr(req.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("approval: create request %s: %w", req.ID, err)
	}
	return nil
}

// Get returns the request with the given identifier.
func (s *Store) Get(id string) (*Request, error) {
	row := s.db.QueryRow(
		`SELECT id, boundary, summary, reason, pattern, state, created_at, expires_at, resolved_at, actor, note
		 FROM approvals WHERE id = ?`, id)
	return scanRequest(row)
}

// Resolve transitions a pending request to the given terminal state,
// recording actor and note. Fails with ErrNotFound for unknown identifiers
// and ErrAlreadyResolved if the request already left pending.
func (s *Store) Resolve(id, actor, note string, to State, now time.Time) (*Request, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("approval: %q is not a terminal state", to)
	}

	res, err := s.db.Exec(
		`UPDATE approvals SET state = ?, actor = ?, note = ?, resolved_at = ?
		 WHERE id = ? AND state = ?`,
		string(to), actor, note, encodeTime(now), id, string(StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("approval: resolve %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("approval: resolve %s: %w", id, err)
	}
	if n == 0 {
		existing, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, existing.State)
	}

	return s.Get(id)
}

// SweepExpired transitions every pending request whose deadline has passed
// to expired and returns them. Idempotent and safe to re-run: an already
// swept request no longer matches the pending condition.
func (s *Store) SweepExpired(now time.Time) ([]Request, error) {
	rows, err := s.db.Query(
		`SELECT id FROM approvals
		 WHERE state = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(StatePending), encodeTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("approval: sweep query: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("approval: sweep scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("approval: sweep: %w", err)
	}

	var expired []Request
	for _, id := range ids {
		req, err := s.Resolve(id, "", "deadline passed", StateExpired, now)
		if errors.Is(err, ErrAlreadyResolved) {
			// Lost the race to an approve/reject between select and update.
			continue
		}
		if err != nil {
			return expired, err
		}
		expired = append(expired, *req)
	}
	return expired, nil
}

// List returns requests in the given state, newest first. An empty state
// returns everything.
func (s *Store) List(state State) ([]Request, error) {
	query := `SELECT id, boundary, summary, reason, pattern, state, created_at, expires_at, resolved_at, actor, note
		 FROM approvals`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("approval: list: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*Request, error) {
	var (
		req               Request
		state, created    string
		expires, resolved sql.NullString
	)
	err := row.Scan(&req.ID, &req.Boundary, &req.Summary, &req.Reason, &req.Pattern,
		&state, &created, &expires, &resolved, &req.Actor, &req.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("approval: scan: %w", err)
	}

	req.State = State(state)
	req.CreatedAt = decodeTime(created)
	req.ExpiresAt = decodeTimePtr(expires)
	req.ResolvedAt = decodeTimePtr(resolved)
	return &req, nil
}

// timeLayout has a fixed-width fractional part so that lexicographic
// comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func decodeTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := decodeTime(s.String)
	return &t
}
