package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reheat-dev/reheat/internal/config"
	"github.com/reheat-dev/reheat/internal/jsparse"
	"github.com/reheat-dev/reheat/internal/transform"
)

var transformCmd = &cobra.Command{
	Use:   "transform <file>",
	Short: "Print a file's transformed output",
	Long: `Transform one compiled module and print the rewritten source to
stdout. Useful for inspecting what the dev server would serve for a
given file without starting it.

Examples:
  reheat transform dist/app.js
  reheat transform dist/components/button.vue.js`,
	Args: cobra.ExactArgs(1),
	RunE: runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)
}

func runTransform(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	parser := jsparse.NewParser(jsparse.Options{
		ComponentCalls:  cfg.Transform.ComponentCalls,
		MountCalls:      cfg.Transform.MountCalls,
		ResolutionCalls: cfg.Transform.ResolutionCalls,
	})

	mod, err := parser.Parse(path, content)
	if err != nil {
		return err
	}

	transformer := transform.NewTransformer(transform.Options{
		CompiledExt: cfg.Transform.CompiledExt,
	})
	code, plan := transformer.Transform(content, mod)

	fmt.Fprintf(os.Stderr, "// classification: %s\n", plan.Classification.String())
	fmt.Print(code)
	return nil
}
