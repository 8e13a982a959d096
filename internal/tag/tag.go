// Package tag implements the hierarchical classification namespace shared by
// every policy component. Tags are slash-delimited (`secrets/api_key`);
// patterns are either exact tags or a prefix ending in the `*` wildcard
// terminator, which stands for the segment and everything below it.
package tag

import "strings"

// Wildcard is the terminator segment standing for "everything below".
const Wildcard = "*"

// Valid reports whether t is a well-formed tag: at least one segment,
// every segment non-empty, no wildcard segments.
func Valid(t string) bool {
	if t == "" {
		return false
	}
	for _, seg := range strings.Split(t, "/") {
		if seg == "" || seg == Wildcard {
			return false
		}
	}
	return true
}

// ValidPattern reports whether p is a well-formed pattern: a valid tag, the
// bare wildcard, or a valid tag prefix followed by "/*".
func ValidPattern(p string) bool {
	if p == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(p, "/"+Wildcard); ok {
		return Valid(prefix)
	}
	return Valid(p)
}

// IsWildcard reports whether p ends in the wildcard terminator.
func IsWildcard(p string) bool {
	return p == Wildcard || strings.HasSuffix(p, "/"+Wildcard)
}

// Matches reports whether pattern matches t. Matching is pure and total:
// malformed inputs simply never match. Comparison is case-sensitive.
//
//	Matches("pii/email", "pii/email")       = true
//	Matches("pii/*", "pii/address/street")  = true
//	Matches("pii/*", "pii")                 = false
//	Matches("*", anything)                  = true
func Matches(pattern, t string) bool {
	if pattern == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/"+Wildcard); ok {
		return strings.HasPrefix(t, prefix+"/")
	}
	return pattern == t
}

// Specificity returns the number of literal (non-wildcard) segments in a
// pattern. Used for deterministic tie-breaking between rules at equal
// priority: more literal segments means a more specific pattern.
func Specificity(pattern string) int {
	if pattern == Wildcard {
		return 0
	}
	if prefix, ok := strings.CutSuffix(pattern, "/"+Wildcard); ok {
		return strings.Count(prefix, "/") + 1
	}
	return strings.Count(pattern, "/") + 1
}

// Candidates returns every pattern that could match t: the tag itself, each
// ancestor prefix with the wildcard terminator, and the bare wildcard. The
// result lets a repository answer matches with O(segments) map probes
// instead of scanning all loaded patterns.
func Candidates(t string) []string {
	segs := strings.Split(t, "/")
	out := make([]string, 0, len(segs)+1)
	out = append(out, t)
	for i := len(segs) - 1; i >= 1; i-- {
		out = append(out, strings.Join(segs[:i], "/")+"/"+Wildcard)
	}
	out = append(out, Wildcard)
	return out
}
