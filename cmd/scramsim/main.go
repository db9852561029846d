package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/internal/version"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string

	// Global flags
	logLevel string
	dbFlag   string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scramsim",
		Short: "scramsim - LFSR line-coding scrambler simulator",
		Long: `scramsim models line-coding scramblers. A linear feedback shift register
generates a key stream from a standard's two-tap polynomial, an additive or
multiplicative scrambler combines it with a frame, a burst-noise channel
corrupts the transmission and the bit-error rates of the scrambled and
unscrambled paths are compared.`,
		Version:       version.GetVersion(buildVersion, buildCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (default: $SCRAMSIM_DB_PATH or ~/.scramsim/scramsim.db)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(standardsCmd())
	rootCmd.AddCommand(scramblersCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(selftestCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(agentCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
