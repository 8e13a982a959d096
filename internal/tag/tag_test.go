package tag

import (
	"reflect"
	"testing"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		tag     string
		want    bool
	}{
		{"pii/email", "pii/email", true},
		{"pii/email", "pii/phone", false},
		{"pii/*", "pii/email", true},
		{"pii/*", "pii/phone", true},
		{"pii/*", "pii/address/street", true},
		{"pii/*", "pii", false},
		{"pii", "pii", true},
		{"pii", "pii/email", false},
		{"*", "pii", true},
		{"*", "secrets/api_key", true},
		{"*", "a/b/c/d", true},
		{"secrets/*", "secretsmanager/key", false},
		{"PII/*", "pii/email", false}, // case-sensitive
		{"pii/address/*", "pii/address/street", true},
		{"pii/address/*", "pii/address", false},
	}

	for _, tt := range tests {
		if got := Matches(tt.pattern, tt.tag); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.pattern, tt.tag, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"pii", true},
		{"pii/email", true},
		{"a/b/c/d", true},
		{"", false},
		{"/pii", false},
		{"pii/", false},
		{"pii//email", false},
		{"*", false},
		{"pii/*", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.tag); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestValidPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"*", true},
		{"pii", true},
		{"pii/*", true},
		{"pii/address/*", true},
		{"", false},
		{"/*", false},
		{"pii//*", false},
		{"*/pii", false},
		{"pii/*/email", false},
	}

	for _, tt := range tests {
		if got := ValidPattern(tt.pattern); got != tt.want {
			t.Errorf("ValidPattern(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestSpecificity(t *testing.T) {
	tests := []struct {
		pattern string
		want    int
	}{
		{"*", 0},
		{"pii", 1},
		{"pii/*", 1},
		{"pii/email", 2},
		{"pii/address/*", 2},
		{"pii/address/street", 3},
	}

	for _, tt := range tests {
		if got := Specificity(tt.pattern); got != tt.want {
			t.Errorf("Specificity(%q) = %d, want %d", tt.pattern, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("pii/address/street")
	want := []string{"pii/address/street", "pii/address/*", "pii/*", "*"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates = %v, want %v", got, want)
	}

	got = Candidates("pii")
	want = []string{"pii", "*"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates = %v, want %v", got, want)
	}
}

// Every candidate pattern must actually match the tag it was derived from,
// and exact-tag candidates must match nothing deeper.
func TestCandidatesMatchProperty(t *testing.T) {
	for _, tg := range []string{"pii", "pii/email", "secrets/api_key", "a/b/c/d/e"} {
		for _, p := range Candidates(tg) {
			if !Matches(p, tg) {
				t.Errorf("candidate %q does not match its own tag %q", p, tg)
			}
		}
	}
}
