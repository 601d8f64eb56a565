package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	defaultRotateEvery = 1000
	defaultBackups     = 5

	timeFormat = "2006-01-02T15:04:05.000Z"

	logVersion = "1.0.0"
)

// Options tunes rotation policy. Zero values take the defaults
// (rotate every 1000 entries, 5 archived generations).
type Options struct {
	RotateEvery int64
	Backups     int
}

// Log is an append-only JSONL audit log with SHA-256 hash chaining.
// Every entry's previous_hash is the entry_hash of the entry before it,
// forming a tamper-evident chain that survives rotation: the first entry
// of a fresh generation chains to the archived generation's head.
type Log struct {
	path        string
	file        *os.File
	prevHash    string
	nextSeq     int64
	rotateEvery int64
	backups     int
	mu          sync.Mutex
}

// Open opens (or creates) an audit log with default rotation policy.
func Open(path string) (*Log, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens (or creates) an audit log for appending.
// A brand-new log starts with a sequence-0 genesis entry whose
// previous_hash is GenesisHash. An existing log recovers the chain
// tail and next sequence from its last line.
func OpenWithOptions(path string, o Options) (*Log, error) {
	if o.RotateEvery <= 0 {
		o.RotateEvery = defaultRotateEvery
	}
	if o.Backups <= 0 {
		o.Backups = defaultBackups
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	l := &Log{
		path:        path,
		prevHash:    GenesisHash,
		rotateEvery: o.RotateEvery,
		backups:     o.Backups,
	}

	fresh := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastEntry(path)
		if err != nil {
			return nil, err
		}
		if last != nil {
			l.prevHash = last.EntryHash
			l.nextSeq = last.Sequence + 1
			fresh = false
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	l.file = file

	if fresh {
		l.mu.Lock()
		_, err := l.appendLocked(TypeSystemInit, SystemInit{
			Action:  "audit_system_initialized",
			Version: logVersion,
		}, LevelHigh)
		l.mu.Unlock()
		if err != nil {
			file.Close()
			return nil, err
		}
	}

	return l, nil
}

// Path returns the active log file path.
func (l *Log) Path() string { return l.path }

// Head returns the current chain head hash.
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prevHash
}

// Append writes an event to the chain and returns the new head hash.
// data may be one of the typed payloads in events.go or any marshalable
// value; nil records an empty object. On a write failure the event is
// mirrored best-effort to the emergency file and the error is returned —
// callers decide how to degrade, the failure is never swallowed here.
func (l *Log) Append(eventType string, data any, level Level) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hash, err := l.appendLocked(eventType, data, level)
	if err != nil {
		return "", err
	}

	if l.nextSeq%l.rotateEvery == 0 {
		if rerr := l.rotateLocked(); rerr != nil {
			// Degrade gracefully: keep writing to the oversized file.
			fmt.Fprintf(os.Stderr, "audit: rotation failed, continuing on current file: %v\n", rerr)
		}
	}

	return hash, nil
}

func (l *Log) appendLocked(eventType string, data any, level Level) (string, error) {
	if level == "" {
		level = LevelNormal
	}
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		l.emergency(eventType, err)
		return "", fmt.Errorf("audit: marshal payload: %w", err)
	}

	entry := Entry{
		Timestamp:     time.Now().UTC().Format(timeFormat),
		Type:          eventType,
		Data:          payload,
		SecurityLevel: level,
		Sequence:      l.nextSeq,
		PrevHash:      l.prevHash,
	}

	hash, err := hashEntry(entry)
	if err != nil {
		l.emergency(eventType, err)
		return "", err
	}
	entry.EntryHash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		l.emergency(eventType, err)
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.emergency(eventType, err)
		return "", fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.emergency(eventType, err)
		return "", fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = hash
	l.nextSeq++
	return hash, nil
}

// rotateLocked archives the active file and starts a new generation.
// Sequence numbers and the hash chain continue across the boundary:
// the new file opens with a log_rotated entry whose previous_hash is
// the archived head.
func (l *Log) rotateLocked() error {
	head := l.prevHash
	archivedSeq := l.nextSeq - 1

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close active file: %w", err)
	}

	// Shift numbered backups, oldest falls off.
	for i := l.backups - 1; i >= 1; i-- {
		old := fmt.Sprintf("%s.%d", l.path, i)
		if _, err := os.Stat(old); err == nil {
			if err := os.Rename(old, fmt.Sprintf("%s.%d", l.path, i+1)); err != nil {
				return l.reopen(fmt.Errorf("shift backup %d: %w", i, err))
			}
		}
	}
	archived := l.path + ".1"
	if err := os.Rename(l.path, archived); err != nil {
		return l.reopen(fmt.Errorf("archive active file: %w", err))
	}

	recordGeneration(l.path, l.backups, Generation{
		RotatedAt:    time.Now().UTC().Format(timeFormat),
		HeadHash:     head,
		LastSequence: archivedSeq,
	})

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open new generation: %w", err)
	}
	l.file = file

	if _, err := l.appendLocked(TypeLogRotated, Rotated{
		ArchivedFile: archived,
		ArchivedHead: head,
		Entries:      archivedSeq + 1,
	}, LevelHigh); err != nil {
		return err
	}
	return nil
}

// reopen tries to restore the append handle after a failed rotation step.
func (l *Log) reopen(cause error) error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("%w (reopen also failed: %v)", cause, err)
	}
	l.file = file
	return cause
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// emergency mirrors a failed append to the secondary channel so the
// failure itself is never silently lost. Last resort, best effort.
func (l *Log) emergency(eventType string, cause error) {
	rec := map[string]any{
		"timestamp": time.Now().UTC().Format(timeFormat),
		"type":      "audit_system_error",
		"data": map[string]any{
			"error":               cause.Error(),
			"original_event_type": eventType,
			"security_level":      string(LevelCritical),
		},
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(l.path+".emergency", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	f.Write(append(line, '\n'))
	f.Sync()
	f.Close()
}

// lastEntry reads the final line of a JSONL log.
func lastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}
	defer f.Close()

	var lastLine []byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lastLine = append(lastLine[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan existing log: %w", err)
	}
	if len(lastLine) == 0 {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal(lastLine, &entry); err != nil {
		return nil, fmt.Errorf("audit: parse chain tail: %w", err)
	}
	return &entry, nil
}
