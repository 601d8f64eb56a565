package audit

import (
	"encoding/json"
	"fmt"
	"os"
)

// Generation records one archived log generation in the rolling
// registry sidecar (<path>.registry.json). The registry lets a full
// historical verification walk across rotation boundaries even though
// backup files shift names on every rotation: the last registry entry
// describes <path>.1, the one before it <path>.2, and so on.
type Generation struct {
	RotatedAt    string `json:"rotated_at"`
	HeadHash     string `json:"head_hash"`
	LastSequence int64  `json:"last_sequence"`
}

func registryPath(logPath string) string { return logPath + ".registry.json" }

// LoadRegistry reads the generation registry for a log path.
// A missing registry is an empty one.
func LoadRegistry(logPath string) ([]Generation, error) {
	data, err := os.ReadFile(registryPath(logPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read registry: %w", err)
	}
	var gens []Generation
	if err := json.Unmarshal(data, &gens); err != nil {
		return nil, fmt.Errorf("audit: parse registry: %w", err)
	}
	return gens, nil
}

// recordGeneration appends a generation record, trimming to the number
// of retained backups. Registry failures never block rotation; the
// chain inside the files remains the source of truth.
func recordGeneration(logPath string, backups int, g Generation) {
	gens, err := LoadRegistry(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: registry unreadable, rewriting: %v\n", err)
		gens = nil
	}
	gens = append(gens, g)
	if len(gens) > backups {
		gens = gens[len(gens)-backups:]
	}

	data, err := json.MarshalIndent(gens, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(registryPath(logPath), data, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write registry: %v\n", err)
	}
}
