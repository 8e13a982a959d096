package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s -> %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s -> %s\n", r.OldPath, r.NewPath)

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", rc.Rule)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", rc.Rule)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s\n", rc.Rule)
			}
		}
	}

	if len(r.AlertChanges) > 0 {
		b.WriteString("\n  Alerts:\n")
		for _, ac := range r.AlertChanges {
			switch ac.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s\n", ac.URL)
			case "removed":
				fmt.Fprintf(&b, "    - %s\n", ac.URL)
			}
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}
