package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mvoronin/perimeter/internal/alert"
	"github.com/mvoronin/perimeter/internal/model"
)

// File is the on-disk YAML shape of a policy file: the rule set plus the
// webhook alert destinations. Parsing and layout belong to the deployment;
// the repository only consumes the loaded rules.
type File struct {
	Rules  []model.PolicyRule `yaml:"rules"`
	Alerts []alert.Config     `yaml:"alerts"`
}

// LoadFile reads a YAML policy file. A missing file is an error here;
// callers that want defaults pass an empty path to their own fallback.
// Rule validation happens at Repository.Load, not here.
func LoadFile(path string) (*File, error) {
	f, _, err := LoadFileWithHash(path)
	return f, err
}

// LoadFileWithHash reads a YAML policy file and returns it plus the SHA-256
// hash of the raw bytes on disk. The hash is recorded in audit entries so
// every decision is attributable to an exact policy version.
func LoadFileWithHash(path string) (*File, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read policy file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parse policy file: %w", err)
	}

	h := sha256.Sum256(data)
	return &f, "sha256:" + hex.EncodeToString(h[:]), nil
}

// StarterYAML is the policy file written by `perimeter init`: an explicit
// catch-all allow at the lowest priority plus the rules most deployments
// start from. The engine defaults to allow even without the catch-all; the
// explicit rule makes the choice visible and easy to flip to block.
const StarterYAML = `# perimeter policy rules.
# Lower priority numbers evaluate first. Patterns are hierarchical tags;
# a trailing /* matches the category and everything below it.
rules:
  - pattern: secrets/*
    boundaries: [action, output]
    priority: 10
    action: block
    reason: secrets must never cross an action or output boundary

  - pattern: pii/*
    boundaries: [output]
    priority: 20
    action: redact
    reason: personal data is masked before leaving the model

  - pattern: exec/destructive
    boundaries: [action]
    priority: 30
    action: require_approval
    reason: destructive commands need a human sign-off

  - pattern: "*"
    boundaries: [input, action, output]
    priority: 1000
    action: allow
    reason: explicit default allow
`
