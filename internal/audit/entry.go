package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Level is the security level attached to an audit entry.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// GenesisHash is the previous_hash of sequence 0 in a fresh chain:
// the SHA-256 of the literal string "GENESIS_BLOCK".
const GenesisHash = "d849201979ca8f774b43c29239d41a09fa7de7d65e1c2818cb777c90ffe9aeb3"

// Entry is one line in the hash-chained JSONL audit log.
// Data holds a typed event payload (see events.go) or an opaque
// key/value map for event types the schema does not know about.
type Entry struct {
	Timestamp     string          `json:"timestamp"`
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data"`
	SecurityLevel Level           `json:"security_level"`
	Sequence      int64           `json:"sequence"`
	PrevHash      string          `json:"previous_hash"`
	EntryHash     string          `json:"entry_hash"`
}

// DecodeData unmarshals the entry payload into v.
func (e Entry) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// canonicalHash computes the SHA-256 of an entry's canonical form:
// the entry minus entry_hash, re-serialized as JSON with sorted keys.
// Both Append and VerifyChain hash through this normalization, so a
// line is verifiable regardless of the field order it was written in.
func canonicalHash(line []byte) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(line, &m); err != nil {
		return "", fmt.Errorf("audit: canonicalize: %w", err)
	}
	delete(m, "entry_hash")
	canon, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("audit: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// hashEntry marshals the entry with an empty entry_hash and returns
// its canonical hash.
func hashEntry(e Entry) (string, error) {
	e.EntryHash = ""
	line, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	return canonicalHash(line)
}
