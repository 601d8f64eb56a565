package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/config"
	"github.com/hannesmitterer/sentinel/internal/integrity"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checksumCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the sentinel configuration",
	Long:  "Creates ~/.sentinel and writes a commented default config.yaml.\nExisting files are preserved unless --force is given.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := config.Dir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		fmt.Printf("config exists at %s (use --force to overwrite)\n", path)
		return nil
	}

	if err := os.WriteFile(path, []byte(config.DefaultConfigYAML()), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

var checksumCmd = &cobra.Command{
	Use:   "checksum",
	Short: "Print the SHA-256 of the running binary",
	Long:  "Prints the digest of the sentinel binary itself, for writing the\nbinary.sha256 checksum file after install:\n  sentinel checksum > ~/.sentinel/binary.sha256",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := integrity.HashSelf()
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	},
}
