package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Compile a workflow definition and report its content hash",
	Long:  "Parse a YAML workflow definition, run it through the builder and compiler, and print its canonical content hash. Exits non-zero with a structured error on any validation failure.",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	wf, err := workflow.LoadYAML(data)
	if err != nil {
		return err
	}

	compiled, err := workflow.Compile(wf)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "workflow %q compiled ok, hash=%s, steps=%d\n", wf.Name, compiled.Hash, len(wf.Steps))
	return nil
}
