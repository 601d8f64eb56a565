package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/daemon"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sentinel daemon",
	Long:  "Starts the guardian scan loop, the liveness watchdog and the config\nhot-reloader, and blocks until interrupted.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(configPath)
	if err != nil {
		return fmt.Errorf("failed to start sentinel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down sentinel...")
		cancel()
	}()

	cfg := d.Config()
	fmt.Fprintf(os.Stderr, "sentinel running\n")
	fmt.Fprintf(os.Stderr, "Audit log:  %s\n", cfg.Audit.Path)
	fmt.Fprintf(os.Stderr, "Quarantine: %s\n", cfg.Quarantine.Path)
	fmt.Fprintf(os.Stderr, "Scan: %s | Watchdog: %s / timeout %s\n\n",
		cfg.Guardian.ScanInterval, cfg.Guardian.WatchdogInterval, cfg.Guardian.WatchdogTimeout)

	return d.Run(ctx)
}
