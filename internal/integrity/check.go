// Package integrity verifies the sentinel binary checksum at startup.
// The expected hash is embedded at build time via ldflags. If the
// running binary does not match, a tamper event is recorded and the
// process refuses to start: a subsystem meant to detect tampering must
// not run as a tampered copy of itself.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hannesmitterer/sentinel/internal/alert"
)

// ExpectedHash is set at build time via:
//
//	-ldflags "-X github.com/hannesmitterer/sentinel/internal/integrity.ExpectedHash=<sha256hex>"
//
// When empty (dev builds), verification falls back to a checksum file.
var ExpectedHash string

// TamperLogDir is the directory where tamper events are written.
// Defaults to /var/log/sentinel. Override for testing.
var TamperLogDir = "/var/log/sentinel"

// ChecksumPaths are the paths checked (in order) for a sha256 checksum
// file holding a single hex-encoded SHA-256 hash. Override for
// testing.
var ChecksumPaths = []string{
	"/etc/sentinel/binary.sha256",
	"$HOME/.sentinel/binary.sha256",
}

// TamperEvent records a binary integrity violation.
type TamperEvent struct {
	Timestamp    string `json:"timestamp"`
	Binary       string `json:"binary"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Hostname     string `json:"hostname"`
	Type         string `json:"type"`
}

// Verify checks that the running binary matches ExpectedHash, falling
// back to a checksum file when no build-time hash is embedded.
// Returns nil if verification passes or no expected hash is available
// (dev mode). On mismatch, writes a tamper event to the tamper log
// before returning the error.
func Verify() error {
	expected := ExpectedHash
	if expected == "" {
		expected = loadChecksumFile()
	}
	if expected == "" {
		fmt.Fprintf(os.Stderr, "integrity: WARNING no build-time hash or checksum file found (dev build, integrity check skipped)\n")
		return nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}

	actual, err := hashFile(exePath)
	if err != nil {
		return fmt.Errorf("integrity: cannot hash binary: %w", err)
	}

	if actual == expected {
		fmt.Fprintf(os.Stderr, "integrity: binary checksum verified (%s...%s)\n",
			actual[:8], actual[len(actual)-8:])
		return nil
	}

	event := TamperEvent{
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Binary:       exePath,
		ExpectedHash: expected,
		ActualHash:   actual,
		Type:         "binary_tamper",
	}
	event.Hostname, _ = os.Hostname()

	writeTamperEvent(event)

	return fmt.Errorf("integrity: binary checksum mismatch (expected %s, got %s)", expected, actual)
}

// HashSelf returns the SHA-256 hex digest of the running binary.
// Useful for writing the checksum file after install.
func HashSelf() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return hashFile(exePath)
}

// loadChecksumFile reads the expected hash from a checksum file.
// Returns empty string if no file is found or readable.
func loadChecksumFile() string {
	for _, p := range ChecksumPaths {
		path := os.ExpandEnv(p)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		hash := strings.TrimSpace(string(data))
		if len(hash) == 64 && isHex(hash) {
			return hash
		}
	}
	return ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeTamperEvent appends a tamper event to the tamper log, prints to
// stderr for the systemd journal, and fires webhook alerts. The audit
// chain is not used here: it cannot be trusted while the binary
// writing it may be compromised.
func writeTamperEvent(event TamperEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	logPath := filepath.Join(TamperLogDir, "tamper.jsonl")
	if err := os.MkdirAll(TamperLogDir, 0700); err == nil {
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600); err == nil {
			f.Write(append(line, '\n'))
			f.Sync()
			f.Close()
		}
	}

	fmt.Fprintf(os.Stderr, "TAMPER ALERT: %s\n", string(line))

	dispatchTamperAlert(event)
}

// dispatchTamperAlert loads the webhooks section of the sentinel
// config and fires the tamper event to every webhook subscribed to
// emergency severity. This runs before full startup, so only the
// webhooks section is parsed, and delivery is synchronous because the
// process is about to exit.
func dispatchTamperAlert(event TamperEvent) {
	ev := alert.Event{
		Timestamp: event.Timestamp,
		Message: fmt.Sprintf("binary checksum mismatch: expected %s, got %s",
			event.ExpectedHash, event.ActualHash),
		Severity: "emergency",
		Type:     "binary_tamper",
		Source:   event.Hostname,
	}
	for _, cfg := range loadWebhookConfigs() {
		for _, s := range cfg.Severities {
			if s == "emergency" || s == "binary_tamper" {
				if err := alert.Send(cfg, ev); err != nil {
					fmt.Fprintf(os.Stderr, "TAMPER ALERT webhook failed: %v\n", err)
				}
				break
			}
		}
	}
}

type webhooksSection struct {
	Webhooks []alert.WebhookConfig `yaml:"webhooks"`
}

// loadWebhookConfigs reads just the webhooks section from config.yaml.
func loadWebhookConfigs() []alert.WebhookConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, ".sentinel", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var ws webhooksSection
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil
	}
	return ws.Webhooks
}
