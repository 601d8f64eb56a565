// Package cli implements the sentinel command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/integrity"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Self-protection subsystem for a long-running kernel process",
	Long:  "Guards an integrity-protected kernel state with a hash-chained audit log,\na continuous anomaly-scanning guardian, a liveness watchdog and an automated\nresponse layer (safe mode, quarantine, alerts).",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := integrity.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.sentinel/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
