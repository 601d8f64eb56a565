// Package quarantine persists quarantined inputs. Records are
// soft-deleted: release flips the status and stamps the releaser, the
// row itself is never removed, so every held input stays reviewable.
package quarantine

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a quarantine id does not exist.
var ErrNotFound = errors.New("quarantine: record not found")

// Status of a quarantine record.
type Status string

const (
	StatusQuarantined Status = "quarantined"
	StatusReleased    Status = "released"
)

// Record is one quarantined input.
type Record struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Input      string `json:"data"`
	InputHash  string `json:"data_hash"`
	Reason     string `json:"reason"`
	Status     Status `json:"status"`
	ReleasedBy string `json:"released_by,omitempty"`
	ReleasedAt string `json:"released_at,omitempty"`
}

// Store is a SQLite-backed quarantine store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS quarantine (
	id          TEXT PRIMARY KEY,
	ts          TEXT NOT NULL,
	input       TEXT NOT NULL,
	input_hash  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	status      TEXT NOT NULL,
	released_by TEXT,
	released_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_quarantine_status ON quarantine(status);
`

// Open opens (or creates) the quarantine database at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("quarantine: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("quarantine: open database: %w", err)
	}
	// The store is written from the guardian loop and the CLI; a single
	// connection sidesteps SQLite writer contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("quarantine: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Add quarantines an input and returns the new record.
// The input is stored as JSON; its SHA-256 is the correlation key the
// audit log carries instead of duplicating the raw payload.
func (s *Store) Add(input map[string]any, reason string) (Record, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return Record{}, fmt.Errorf("quarantine: marshal input: %w", err)
	}
	sum := sha256.Sum256(payload)

	rec := Record{
		ID:        "q-" + uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Input:     string(payload),
		InputHash: hex.EncodeToString(sum[:]),
		Reason:    reason,
		Status:    StatusQuarantined,
	}

	_, err = s.db.Exec(
		`INSERT INTO quarantine (id, ts, input, input_hash, reason, status) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.Input, rec.InputHash, rec.Reason, string(rec.Status),
	)
	if err != nil {
		return Record{}, fmt.Errorf("quarantine: insert: %w", err)
	}
	return rec, nil
}

// Release flips a record to released. The record is retained for audit.
// Returns ErrNotFound for an unknown id; releasing an already-released
// record is a no-op that still succeeds.
func (s *Store) Release(id, authorizedBy string) (Record, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(
		`UPDATE quarantine SET status = ?, released_by = ?, released_at = ? WHERE id = ? AND status = ?`,
		string(StatusReleased), authorizedBy, now, id, string(StatusQuarantined),
	)
	if err != nil {
		return Record{}, fmt.Errorf("quarantine: release: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown or already released; disambiguate.
		rec, err := s.Get(id)
		if err != nil {
			return Record{}, err
		}
		return rec, nil
	}
	return s.Get(id)
}

// Get returns a record by id.
func (s *Store) Get(id string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, ts, input, input_hash, reason, status,
		        COALESCE(released_by, ''), COALESCE(released_at, '')
		 FROM quarantine WHERE id = ?`, id)
	return scanRecord(row)
}

// List returns records, newest first, optionally filtered by status.
func (s *Store) List(status Status) ([]Record, error) {
	query := `SELECT id, ts, input, input_hash, reason, status,
	                 COALESCE(released_by, ''), COALESCE(released_at, '')
	          FROM quarantine`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY ts DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("quarantine: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of records with the given status
// (all records when status is empty).
func (s *Store) Count(status Status) (int, error) {
	query := `SELECT COUNT(*) FROM quarantine`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("quarantine: count: %w", err)
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.Timestamp, &rec.Input, &rec.InputHash,
		&rec.Reason, &status, &rec.ReleasedBy, &rec.ReleasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("quarantine: scan: %w", err)
	}
	rec.Status = Status(status)
	return rec, nil
}
