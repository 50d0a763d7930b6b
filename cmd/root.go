// Package cmd implements the ensemble CLI: a single job-oriented command
// surface over internal/planner and internal/runner, following spec.md
// §6's job options and exit code table. Grounded on the teacher's
// cmd/root.go (cobra root command, SilenceUsage, version template,
// semantic exit codes via a dedicated getExitCode dispatcher).
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/muster-ensemble/pkg/logging"
)

// Exit codes, per spec.md §6 "Exit codes".
const (
	ExitCodeSuccess          = 0
	ExitCodeThresholdReached = 1
	ExitCodeAborted          = 2
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Reconcile a declarative service topology against its live instances",
	Long: `ensemble plans and runs jobs against a TOSCA-style service topology:
it diffs the desired spec against the instance graph's observed state,
emits an ordered stream of tasks, and executes them through a pluggable
configurator protocol, recording every change to an append-only audit log.`,
	SilenceUsage: true,
}

// SetVersion injects the build-time version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the CLI process entry point, called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "ensemble version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		logging.Error("CLI", err, "command failed")
		os.Exit(ExitCodeAborted)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
}
