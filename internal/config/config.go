// Package config loads the sentinel configuration. Values start from
// built-in defaults; a YAML file overwrites only the fields it names,
// so a partial config never zeroes the rest.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hannesmitterer/sentinel/internal/alert"
)

// AuditConfig controls the audit log location and rotation.
type AuditConfig struct {
	Path        string `yaml:"path"`
	RotateEvery int64  `yaml:"rotate_every"`
	Backups     int    `yaml:"backups"`
}

// GuardianConfig tunes the monitoring loops and detectors.
// Durations accept YAML strings like "1s" or "30s".
type GuardianConfig struct {
	ScanInterval     time.Duration `yaml:"scan_interval"`
	AnomalyThreshold float64       `yaml:"anomaly_threshold"`
	BaselineTrust    float64       `yaml:"baseline_trust"`
	BaselineHarmony  float64       `yaml:"baseline_harmony"`
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	WatchdogTimeout  time.Duration `yaml:"watchdog_timeout"`
}

// QuarantineConfig controls the quarantine store.
type QuarantineConfig struct {
	Path string `yaml:"path"`
}

// Config holds all configurable sentinel parameters.
type Config struct {
	Audit      AuditConfig           `yaml:"audit"`
	Guardian   GuardianConfig        `yaml:"guardian"`
	Quarantine QuarantineConfig      `yaml:"quarantine"`
	Webhooks   []alert.WebhookConfig `yaml:"webhooks"`
}

// Dir returns the sentinel state directory, ~/.sentinel by default.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sentinel"
	}
	return filepath.Join(home, ".sentinel")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Audit: AuditConfig{
			Path:        filepath.Join(dir, "audit.jsonl"),
			RotateEvery: 1000,
			Backups:     5,
		},
		Guardian: GuardianConfig{
			ScanInterval:     time.Second,
			AnomalyThreshold: 0.5,
			BaselineTrust:    1.0,
			BaselineHarmony:  1.0,
			WatchdogInterval: 5 * time.Second,
			WatchdogTimeout:  30 * time.Second,
		},
		Quarantine: QuarantineConfig{
			Path: filepath.Join(dir, "quarantine.db"),
		},
	}
}

// Load loads configuration from a YAML file.
// Empty path falls back to ~/.sentinel/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw
// YAML bytes on disk. When no file exists (defaults used), the hash is
// the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, hash, nil
}

// DefaultConfigYAML returns a commented YAML string for sentinel init.
func DefaultConfigYAML() string {
	return `# sentinel configuration
# Generated by: sentinel init
#
# All fields are optional; omitted fields keep their built-in defaults.

# Audit log location and rotation.
# path defaults to ~/.sentinel/audit.jsonl
audit:
  rotate_every: 1000   # entries per file before rotation
  backups: 5           # archived generations to keep

# Guardian monitoring loops and detectors.
guardian:
  scan_interval: 1s
  anomaly_threshold: 0.5   # trust/harmony deviation from baseline
  baseline_trust: 1.0
  baseline_harmony: 1.0
  watchdog_interval: 5s
  watchdog_timeout: 30s    # heartbeat staleness before safe mode

# Quarantine store for rejected inputs.
# path defaults to ~/.sentinel/quarantine.db
quarantine: {}

# Alert webhooks. Formats: generic | slack | pagerduty.
# severities matches the alert severity or type; empty = match all.
webhooks: []
#  - url: https://hooks.slack.com/services/XXX
#    format: slack
#    severities: [critical, emergency]
`
}
