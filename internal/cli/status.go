package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/config"
	"github.com/hannesmitterer/sentinel/internal/quarantine"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the on-disk state of the sentinel subsystem",
	Long:  "Reports the audit chain verification status, quarantine counts and the\neffective configuration. Reads the persistent state only; live kernel\nstate belongs to the running daemon.",
	RunE:  runStatus,
}

type statusReport struct {
	Audit      auditStatus            `json:"audit"`
	Quarantine quarantineStatusReport `json:"quarantine"`
	Config     configStatus           `json:"config"`
}

type auditStatus struct {
	Path    string            `json:"path"`
	Chain   audit.ChainStatus `json:"chain"`
	Entries int               `json:"entries"`
	Issues  int               `json:"issues,omitempty"`
	Head    string            `json:"head,omitempty"`
}

type quarantineStatusReport struct {
	Path     string `json:"path"`
	Held     int    `json:"held"`
	Released int    `json:"released"`
}

type configStatus struct {
	Path             string  `json:"path,omitempty"`
	Hash             string  `json:"hash"`
	AnomalyThreshold float64 `json:"anomaly_threshold"`
	Webhooks         int     `json:"webhooks"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, cfgHash, err := config.LoadWithHash(configPath)
	if err != nil {
		return err
	}

	report := statusReport{
		Config: configStatus{
			Path:             configPath,
			Hash:             cfgHash,
			AnomalyThreshold: cfg.Guardian.AnomalyThreshold,
			Webhooks:         len(cfg.Webhooks),
		},
	}

	report.Audit.Path = cfg.Audit.Path
	if _, err := os.Stat(cfg.Audit.Path); err == nil {
		res := audit.VerifyChain(cfg.Audit.Path)
		report.Audit.Chain = res.Status
		report.Audit.Entries = res.Entries
		report.Audit.Issues = len(res.Issues)
		report.Audit.Head = res.LastEntry
	} else {
		report.Audit.Chain = audit.StatusEmpty
	}

	report.Quarantine.Path = cfg.Quarantine.Path
	if _, err := os.Stat(cfg.Quarantine.Path); err == nil {
		store, err := quarantine.Open(cfg.Quarantine.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		report.Quarantine.Held, _ = store.Count(quarantine.StatusQuarantined)
		report.Quarantine.Released, _ = store.Count(quarantine.StatusReleased)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if report.Audit.Chain == audit.StatusCompromised {
		os.Exit(1)
	}
	return nil
}
