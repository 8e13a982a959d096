// Package cli implements the perimeter command tree.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "perimeter",
	Short: "Boundary policy engine for AI agents",
	Long:  "Evaluates classified content at agent boundaries (input, action, output)\nagainst priority-ordered rules: allow, block, redact, or require human approval.\nEvery decision lands in a hash-chained audit log.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configDir is where perimeter keeps its files when no explicit path is given.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "perimeter")
	}
	return filepath.Join(home, ".perimeter")
}

func defaultPolicyPath() string {
	return filepath.Join(configDir(), "policy.yaml")
}

func defaultAuditPath() string {
	return filepath.Join(configDir(), "audit.jsonl")
}
