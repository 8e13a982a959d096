// Package redact replaces detector-tagged spans of a payload with category
// placeholders. The engine never scans content itself: spans come from
// external detectors, and everything outside them is preserved byte-for-byte.
package redact

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOverlappingSpan indicates two tagged spans overlap. That is a detector
// bug in the caller's tagging and is surfaced rather than silently resolved.
var ErrOverlappingSpan = errors.New("overlapping redaction spans")

// ErrInvalidSpan indicates a span falls outside the payload or is empty.
var ErrInvalidSpan = errors.New("invalid redaction span")

// Span is one byte range to replace, tagged with the classification that
// determines its placeholder.
type Span struct {
	Start int
	End   int
	Tag   string
}

// Placeholder derives the fixed replacement token for a tag category:
// "pii/email" becomes "<<PII_EMAIL>>". The literal value never appears in
// the sanitized payload.
func Placeholder(tag string) string {
	return "<<" + strings.ToUpper(strings.ReplaceAll(tag, "/", "_")) + ">>"
}

// Apply returns payload with every span replaced by its category placeholder.
// Spans may arrive in any order but must be within bounds, non-empty, and
// non-overlapping; violations return ErrInvalidSpan or ErrOverlappingSpan
// with the offending range. Bytes outside the spans are copied exactly.
func Apply(payload string, spans []Span) (string, error) {
	if len(spans) == 0 {
		return payload, nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	for i, s := range sorted {
		if s.Start < 0 || s.End > len(payload) || s.Start >= s.End {
			return "", fmt.Errorf("%w: [%d, %d) in payload of %d bytes", ErrInvalidSpan, s.Start, s.End, len(payload))
		}
		if i > 0 && s.Start < sorted[i-1].End {
			return "", fmt.Errorf("%w: [%d, %d) overlaps [%d, %d)",
				ErrOverlappingSpan, s.Start, s.End, sorted[i-1].Start, sorted[i-1].End)
		}
	}

	var b strings.Builder
	b.Grow(len(payload))
	cursor := 0
	for _, s := range sorted {
		b.WriteString(payload[cursor:s.Start])
		b.WriteString(Placeholder(s.Tag))
		cursor = s.End
	}
	b.WriteString(payload[cursor:])
	return b.String(), nil
}
