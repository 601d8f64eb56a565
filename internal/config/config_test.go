package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Audit.RotateEvery != 1000 {
		t.Errorf("expected RotateEvery=1000, got %d", cfg.Audit.RotateEvery)
	}
	if cfg.Audit.Backups != 5 {
		t.Errorf("expected Backups=5, got %d", cfg.Audit.Backups)
	}
	if cfg.Guardian.ScanInterval != time.Second {
		t.Errorf("expected ScanInterval=1s, got %v", cfg.Guardian.ScanInterval)
	}
	if cfg.Guardian.AnomalyThreshold != 0.5 {
		t.Errorf("expected AnomalyThreshold=0.5, got %v", cfg.Guardian.AnomalyThreshold)
	}
	if cfg.Guardian.BaselineTrust != 1.0 || cfg.Guardian.BaselineHarmony != 1.0 {
		t.Errorf("expected baseline 1.0/1.0, got %v/%v",
			cfg.Guardian.BaselineTrust, cfg.Guardian.BaselineHarmony)
	}
	if cfg.Guardian.WatchdogTimeout != 30*time.Second {
		t.Errorf("expected WatchdogTimeout=30s, got %v", cfg.Guardian.WatchdogTimeout)
	}
	if cfg.Audit.Path == "" || cfg.Quarantine.Path == "" {
		t.Error("expected default paths to be set")
	}
	if len(cfg.Webhooks) != 0 {
		t.Errorf("expected no default webhooks, got %d", len(cfg.Webhooks))
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Guardian.AnomalyThreshold != 0.5 {
		t.Errorf("expected default threshold, got %v", cfg.Guardian.AnomalyThreshold)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
audit:
  path: /var/lib/sentinel/audit.jsonl
  rotate_every: 50
guardian:
  scan_interval: 250ms
  anomaly_threshold: 0.8
  watchdog_timeout: 10s
webhooks:
  - url: https://hooks.example.com/x
    format: slack
    severities: [critical, emergency]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Audit.Path != "/var/lib/sentinel/audit.jsonl" {
		t.Errorf("audit path not applied: %s", cfg.Audit.Path)
	}
	if cfg.Audit.RotateEvery != 50 {
		t.Errorf("expected RotateEvery=50, got %d", cfg.Audit.RotateEvery)
	}
	if cfg.Guardian.ScanInterval != 250*time.Millisecond {
		t.Errorf("expected ScanInterval=250ms, got %v", cfg.Guardian.ScanInterval)
	}
	if cfg.Guardian.AnomalyThreshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", cfg.Guardian.AnomalyThreshold)
	}
	if cfg.Guardian.WatchdogTimeout != 10*time.Second {
		t.Errorf("expected WatchdogTimeout=10s, got %v", cfg.Guardian.WatchdogTimeout)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Format != "slack" {
		t.Errorf("webhooks not applied: %+v", cfg.Webhooks)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
guardian:
  anomaly_threshold: 0.6
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Guardian.AnomalyThreshold != 0.6 {
		t.Errorf("override not applied: %v", cfg.Guardian.AnomalyThreshold)
	}
	// Unspecified fields keep their defaults.
	if cfg.Guardian.ScanInterval != time.Second {
		t.Errorf("default ScanInterval lost: %v", cfg.Guardian.ScanInterval)
	}
	if cfg.Audit.RotateEvery != 1000 {
		t.Errorf("default RotateEvery lost: %d", cfg.Audit.RotateEvery)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("guardian: ["), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadWithHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("guardian:\n  anomaly_threshold: 0.7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, hash1, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Guardian.AnomalyThreshold != 0.7 {
		t.Errorf("override not applied: %v", cfg.Guardian.AnomalyThreshold)
	}
	if len(hash1) != len("sha256:")+64 {
		t.Errorf("malformed hash: %s", hash1)
	}

	// Same bytes, same hash.
	_, hash2, err := LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	if hash1 != hash2 {
		t.Error("hash not stable across loads")
	}

	// Missing file hashes empty input.
	_, hash3, err := LoadWithHash(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if hash3 == hash1 {
		t.Error("missing-file hash should differ from real config hash")
	}
}
