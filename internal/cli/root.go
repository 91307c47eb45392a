// Package cli implements the Lockup command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lockup",
	Short: "Lockup: task lock/unlock engine",
	Long: `Lockup runs the task lock/unlock state machine: time- and vote-gated
lock tasks, board bounties, hourly coin rewards, freeze accounting, and the
pinning queue, served over a JSON API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
