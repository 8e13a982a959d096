package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mvoronin/perimeter/internal/model"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writePolicy(t, `
rules:
  - pattern: secrets/*
    boundaries: [action, output]
    priority: 10
    action: block
    reason: no secrets
  - pattern: "*"
    boundaries: [input, action, output]
    priority: 1000
    action: allow
alerts:
  - url: https://hooks.example.com/abc
    format: slack
    events: [block, require_approval]
`)

	f, hash, err := LoadFileWithHash(path)
	if err != nil {
		t.Fatalf("LoadFileWithHash failed: %v", err)
	}
	if len(f.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(f.Rules))
	}
	if f.Rules[0].Pattern != "secrets/*" || f.Rules[0].Action != model.ActionBlock {
		t.Errorf("unexpected first rule: %+v", f.Rules[0])
	}
	if len(f.Rules[0].Boundaries) != 2 {
		t.Errorf("expected 2 boundaries, got %v", f.Rules[0].Boundaries)
	}
	if hash == "" || hash[:7] != "sha256:" {
		t.Errorf("expected sha256-prefixed hash, got %q", hash)
	}
	if len(f.Alerts) != 1 || f.Alerts[0].Format != "slack" {
		t.Errorf("expected one slack alert config, got %v", f.Alerts)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFileBadYAML(t *testing.T) {
	path := writePolicy(t, "rules: [pattern: {{")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestStarterYAMLLoads(t *testing.T) {
	path := writePolicy(t, StarterYAML)
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("starter policy failed to parse: %v", err)
	}

	r := NewRepository()
	if err := r.Load(f.Rules); err != nil {
		t.Fatalf("starter policy failed validation: %v", err)
	}

	d := r.Resolve(model.BoundaryOutput, []string{"secrets/api_key"})
	if d.Action != model.ActionBlock {
		t.Errorf("starter policy should block secrets on output, got %s", d.Action)
	}
	d = r.Resolve(model.BoundaryInput, []string{"misc/note"})
	if d.Action != model.ActionAllow || d.Rule == nil {
		t.Errorf("starter policy carries an explicit catch-all, got %+v", d)
	}
}
