package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvoronin/perimeter/internal/policy"
)

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing policy.yaml")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a starter policy.yaml",
	Long:  "Creates ~/.perimeter/policy.yaml with a commented starter rule set.\nEdit this file to customize boundary behavior.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	path := filepath.Join(dir, "policy.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("policy.yaml already exists at %s (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(policy.StarterYAML), 0644); err != nil {
		return fmt.Errorf("failed to write policy.yaml: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	return nil
}
