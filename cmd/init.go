package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reheat-dev/reheat/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default .reheat.yml configuration",
	Long: `Write a .reheat.yml with the built-in defaults so they can be edited.
If no directory is provided, the file is created in the current
directory.

Examples:
  reheat init                # Write .reheat.yml here
  reheat init my-project     # Create my-project/.reheat.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	path := filepath.Join(dir, ".reheat.yml")
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)
	return nil
}
