// keel-sim runs kernel scenarios against the simulated machine: it boots
// the kernel, drives the tick interrupt from wall-clock time, spawns the
// scenario's workloads and reports what the kernel did.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "keel-sim",
	Short:         "Run Keel kernel scenarios on the simulated machine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, versionCmd)
}

// newLogger builds the process logger. Debug level is flag-gated; output is
// the console encoding on stderr so stdout stays machine-readable.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "keel-sim:", err)
		os.Exit(1)
	}
}
