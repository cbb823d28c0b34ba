// Package lock provides crash-safe, file-based mutual exclusion for
// orchestration runs. A single well-known lock file per project is the
// mutex; staleness is decided by probing the recorded owner PID.
package lock

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SchemaVersion is written into every lock record.
const SchemaVersion = "1"

// Metadata carries optional run progress stored alongside the lock.
type Metadata struct {
	Iteration int    `json:"iteration,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	State     string `json:"state,omitempty"`
}

// Record is the JSON payload stored in the lock file.
type Record struct {
	Version  string    `json:"version"`
	PID      int       `json:"pid"`
	Started  time.Time `json:"started"`
	Command  string    `json:"command"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Info is the non-throwing view of the lock file used by status displays
// and by Acquire's staleness check. A corrupt lock file reports
// Locked=true with nil sub-fields: a lock we cannot read is still a lock.
type Info struct {
	Locked   bool
	PID      *int
	Started  *time.Time
	Command  string
	Metadata *Metadata
	Elapsed  string // HH:MM:SS, empty when Started is unknown
	Stale    bool
}

// HeldError is returned by Acquire when another live process holds the
// lock. It carries enough context for the caller to suggest an override.
type HeldError struct {
	PID     int
	Elapsed time.Duration
}

func (e *HeldError) Error() string {
	if e.PID == 0 {
		return "lock file exists but is unreadable; treating it as held"
	}
	return fmt.Sprintf("lock held by pid %d (running for %s)", e.PID, formatElapsed(e.Elapsed))
}

// AliveFunc probes whether a PID refers to a live process.
type AliveFunc func(pid int) bool

// Manager owns all access to one lock file. No other code reads or
// writes the path directly.
type Manager struct {
	path   string
	alive  AliveFunc
	logger *log.Logger
}

// NewManager creates a Manager for the given lock file path. A nil
// logger sends release/inspect diagnostics to stderr.
func NewManager(path string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Manager{
		path:   path,
		alive:  ProcessAlive,
		logger: logger,
	}
}

// Path returns the lock file path.
func (m *Manager) Path() string {
	return m.path
}

// Acquire takes the lock for the given owner PID, or returns *HeldError
// when another live process holds it. A stale lock (owner PID dead) is
// removed and re-acquired. The write is atomic: the record is serialized
// to a temp sibling and published with an exclusive link, so a
// half-written lock file is never observable and two racing acquirers
// cannot both win.
func (m *Manager) Acquire(pid int, command string, meta *Metadata) error {
	if _, err := os.Stat(m.path); err == nil {
		info := m.Inspect()
		if !info.Stale {
			return m.heldBy(info)
		}
		m.logger.Printf("[WARN] lock stale pid=%d path=%s, removing", derefPID(info.PID), m.path)
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale lock: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat lock file: %w", err)
	}

	record := Record{
		Version:  SchemaVersion,
		PID:      pid,
		Started:  time.Now().UTC(),
		Command:  command,
		Metadata: meta,
	}
	return m.writeAtomic(record)
}

// heldBy folds the inspected lock state into a *HeldError.
func (m *Manager) heldBy(info Info) *HeldError {
	held := &HeldError{}
	if info.PID != nil {
		held.PID = *info.PID
	}
	if info.Started != nil {
		held.Elapsed = time.Since(*info.Started)
	}
	return held
}

// writeAtomic serializes the record to a temp file in the lock directory
// and links it into place. Link fails with EEXIST when the lock file
// appeared in the meantime, so concurrent acquirers that both pass the
// stat check still resolve to exactly one winner; the losers get
// *HeldError for the winner's record.
func (m *Manager) writeAtomic(record Record) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	content, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock record: %w", err)
	}
	content = append(content, '\n')

	tmp, err := os.CreateTemp(dir, ".overture-lock-*")
	if err != nil {
		return fmt.Errorf("create temp lock file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure path
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp lock file: %w", err)
	}

	if err := os.Link(tmpName, m.path); err != nil {
		if os.IsExist(err) {
			return m.heldBy(m.Inspect())
		}
		return fmt.Errorf("link lock file into place: %w", err)
	}
	return nil
}

// Release deletes the lock file if present. Errors are logged, never
// returned: Release runs from cleanup paths and signal handlers where
// failing would abort shutdown. Safe to call when no lock exists.
func (m *Manager) Release() {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		m.logger.Printf("[WARN] lock release failed path=%s error=%v", m.path, err)
	}
}

// Inspect reports the current lock state. It never returns an error:
// an unreadable or corrupt file reports Locked=true with nil fields.
func (m *Manager) Inspect() Info {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}
		}
		m.logger.Printf("[WARN] lock inspect read failed path=%s error=%v", m.path, err)
		return Info{Locked: true}
	}

	record, ok := parseRecord(data)
	if !ok {
		return Info{Locked: true}
	}

	info := Info{
		Locked:   true,
		PID:      &record.PID,
		Command:  record.Command,
		Metadata: record.Metadata,
	}
	if !record.Started.IsZero() {
		started := record.Started
		info.Started = &started
		info.Elapsed = formatElapsed(time.Since(started))
	}
	if record.PID > 0 {
		info.Stale = !m.alive(record.PID)
	}
	return info
}

// parseRecord decodes a lock file body, tolerating the legacy two-line
// text format ("Started: <timestamp>\nPID: <n>") written by older
// releases. Legacy records report Command as "unknown".
func parseRecord(data []byte) (Record, bool) {
	var record Record
	if err := json.Unmarshal(data, &record); err == nil && record.PID > 0 {
		return record, true
	}

	record = Record{Command: "unknown"}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Started:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "Started:"))
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				record.Started = t
			}
		case strings.HasPrefix(line, "PID:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "PID:"))
			if pid, err := strconv.Atoi(raw); err == nil {
				record.PID = pid
			}
		}
	}
	if record.PID > 0 {
		return record, true
	}
	return Record{}, false
}

// formatElapsed renders a duration as HH:MM:SS.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func derefPID(pid *int) int {
	if pid == nil {
		return 0
	}
	return *pid
}
