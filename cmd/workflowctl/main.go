// Command workflowctl validates, runs, and dry-runs workflow definitions
// against the execution platform.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudshipai/workflowcore/internal/logging"
)

var (
	cfgFile string
	debug   bool
	rootCmd = &cobra.Command{
		Use:   "workflowctl",
		Short: "Compile, validate, and run workflowcore workflow definitions",
	}
)

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, env/defaults only)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dryRunCmd)
}

func initLogging() {
	logging.Initialize(debug)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
