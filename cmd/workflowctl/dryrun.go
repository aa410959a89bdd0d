package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudshipai/workflowcore/pkg/dryrun"
	"github.com/cloudshipai/workflowcore/pkg/executor"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

var (
	dryRunTimeout time.Duration

	dryRunCmd = &cobra.Command{
		Use:   "dryrun <workflow.yaml> <step-name>",
		Short: "Run a single container step locally against Docker, bypassing the platform",
		Long:  "Loads a workflow definition, locates a named container step, and runs it against the local Docker/OCI runtime via dagger.io/dagger. Never contacts the platform and never submits a workflow run.",
		Args:  cobra.ExactArgs(2),
		RunE:  runDryRun,
	}
)

func init() {
	dryRunCmd.Flags().DurationVar(&dryRunTimeout, "timeout", 0, "override the step's own timeout")
}

func runDryRun(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	wf, err := workflow.LoadYAML(data)
	if err != nil {
		return err
	}

	step, ok := wf.StepByName(args[1])
	if !ok {
		return fmt.Errorf("workflow %q has no step named %q", wf.Name, args[1])
	}
	container, ok := step.Executor.(*executor.Container)
	if !ok {
		return fmt.Errorf("step %q is not a container step", args[1])
	}

	cfg := dryrun.DefaultConfig()
	cfg.Enabled = true
	runner := dryrun.New(cfg)

	timeout := dryRunTimeout
	if timeout == 0 {
		timeout = step.Timeout
	}

	result, err := runner.Run(cmd.Context(), step.Name, container, timeout)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok=%v exit=%d duration=%dms\n", result.OK, result.ExitCode, result.DurationMs)
	if result.Stdout != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "--- stdout ---")
		fmt.Fprintln(cmd.OutOrStdout(), result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "--- stderr ---")
		fmt.Fprintln(cmd.OutOrStdout(), result.Stderr)
	}
	if result.Error != "" {
		return fmt.Errorf("dry run failed: %s", result.Error)
	}
	return nil
}
