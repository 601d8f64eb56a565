package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/config"
)

var (
	tailLines  int
	verifyFull bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditReportCmd)
	auditVerifyCmd.Flags().BoolVar(&verifyFull, "full", false, "Also walk archived generations across rotation boundaries")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's previous_hash\nmatches the canonical SHA-256 of the previous entry. With --full, archived\ngenerations are verified across rotation boundaries against the rotation\nregistry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditReportCmd = &cobra.Command{
	Use:   "report [path]",
	Short: "Export an audit activity report",
	Long:  "Summarizes the audit log: entry counts by type and security level,\nchain head and verification status, as JSON on stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditReport,
}

// auditPath resolves an explicit argument or falls back to the
// configured audit log location.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Audit.Path, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	result := audit.VerifyChain(path)
	if verifyFull {
		result = audit.VerifyHistory(path)
	}

	switch result.Status {
	case audit.StatusVerified:
		fmt.Printf("OK: %d entries verified (head %s)\n", result.Entries, short(result.LastEntry))
		return nil
	case audit.StatusEmpty:
		fmt.Println("OK: audit log is empty")
		return nil
	case audit.StatusError:
		return fmt.Errorf("verification error: %s", result.Reason)
	}

	fmt.Fprintf(os.Stderr, "COMPROMISED: %d issue(s)\n", len(result.Issues))
	for _, issue := range result.Issues {
		loc := fmt.Sprintf("line %d", issue.Line)
		if issue.File != "" {
			loc = fmt.Sprintf("%s line %d", issue.File, issue.Line)
		}
		fmt.Fprintf(os.Stderr, "  %s: %s (sequence %d)\n", loc, issue.Kind, issue.Sequence)
	}
	os.Exit(1)
	return nil
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	for _, line := range lines[start:] {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Println(line)
			continue
		}
		out, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(out))
	}

	return nil
}

func runAuditReport(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no audit log at %s", path)
	}

	log, err := audit.Open(path)
	if err != nil {
		return err
	}
	defer log.Close()

	report := log.ExportReport()
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
