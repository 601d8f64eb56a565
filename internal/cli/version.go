package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/integrity"
)

// version is overridable at build time:
//
//	go build -ldflags "-X github.com/hannesmitterer/sentinel/internal/cli.version=1.2.0"
var version = "1.0.0-dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentinel %s (%s/%s, %s)\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		if integrity.ExpectedHash != "" {
			fmt.Printf("binary checksum pinned: %s\n", integrity.ExpectedHash)
		}
	},
}
