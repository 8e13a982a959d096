// Package audit is the append-only trail every decision flows through.
// Records are JSONL lines chained by SHA-256: each entry's prev_hash is the
// hash of the previous line, making tampering evident after the fact.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash for the first entry in a new audit log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrWrite indicates the underlying storage rejected an append. The caller
// treats this as fatal for the enclosing evaluation: a decision that cannot
// be proven later must not proceed.
var ErrWrite = errors.New("audit write failed")

// Log is an append-only, hash-chained JSONL audit trail. Appends are safe
// for concurrent use; each append is synced to disk before returning.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	mu       sync.Mutex
}

// Open opens (or creates) an audit log file for appending. If the file
// already exists, the last line is read to recover the chain tail.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastLine(path)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			prevHash = HashLine(last)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{path: path, file: file, prevHash: prevHash}, nil
}

func lastLine(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var last []byte
	for scanner.Scan() {
		last = make([]byte, len(scanner.Bytes()))
		copy(last, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	return last, nil
}

// Append writes one record to the log with hash chaining. The timestamp is
// set if empty, prev_hash is always overwritten with the chain tail, and
// the line is fsynced before Append returns; durability is part of the
// evaluation's success contract. Failures wrap ErrWrite.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(TimestampLayout)
	}
	rec.PrevHash = l.prevHash

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", ErrWrite, err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrWrite, err)
	}

	l.prevHash = HashLine(line)
	return nil
}

// Filter narrows a Query. Zero values mean "no constraint"; Limit <= 0
// returns every match.
type Filter struct {
	Boundary string
	Action   string
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f Filter) matches(rec Record) bool {
	if f.Boundary != "" && rec.Boundary != f.Boundary {
		return false
	}
	if f.Action != "" && rec.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		t := rec.Time()
		if !f.Since.IsZero() && t.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && t.After(f.Until) {
			return false
		}
	}
	return true
}

// Query returns matching records in insertion order, newest-last. When more
// records match than Limit, the most recent Limit records are returned.
// Read-only: stored records are never touched.
func (l *Log) Query(f Filter) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open for query: %w", err)
	}
	defer file.Close()

	var out []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("audit: corrupt record: %w", err)
		}
		if f.matches(rec) {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan: %w", err)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
