package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesDefaultConfig(t *testing.T) {
	tmpHome := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", oldHome)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(tmpHome, ".sentinel", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "anomaly_threshold") {
		t.Error("default config missing guardian section")
	}
}

func TestInitPreservesExistingConfig(t *testing.T) {
	tmpHome := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)
	defer os.Setenv("HOME", oldHome)

	dir := filepath.Join(tmpHome, ".sentinel")
	os.MkdirAll(dir, 0700)
	path := filepath.Join(dir, "config.yaml")
	custom := "guardian:\n  anomaly_threshold: 0.9\n"
	os.WriteFile(path, []byte(custom), 0600)

	if err := runInit(initCmd, nil); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != custom {
		t.Error("existing config overwritten without --force")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := runInit(initCmd, nil); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) == custom {
		t.Error("--force did not overwrite config")
	}
}
