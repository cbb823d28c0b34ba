// Package events provides an append-only JSONL audit log of
// orchestration events (phase transitions, gate verdicts, retries, lock
// activity) with size-based rotation.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize caps the active log file at 10MB before rotation.
	DefaultMaxLogSize = 10 * 1024 * 1024
	archiveDir        = "archive"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	RunID     string         `json:"run_id,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger appends entries to a JSONL file, rotating into an archive
// directory when the size cap is reached.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	path        string
	rotations   int
}

// NewLogger opens (or creates) the audit log at path.
func NewLogger(path string, maxSize int64) (*Logger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}
	l := &Logger{path: path, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Logger) open() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// Log appends one event. The run/phase/task fields are lifted out of
// details when present so downstream tooling can filter without parsing
// the free-form map. The caller's map is never modified.
func (l *Logger) Log(event string, details map[string]any) error {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
	}
	rest := make(map[string]any, len(details))
	for key, value := range details {
		if s, ok := value.(string); ok {
			switch key {
			case "run_id":
				entry.RunID = s
				continue
			case "phase":
				entry.Phase = s
				continue
			case "task_id":
				entry.TaskID = s
				continue
			}
		}
		rest[key] = value
	}
	if len(rest) > 0 {
		entry.Details = rest
	}
	return l.write(&entry)
}

func (l *Logger) write(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if l.currentSize+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate audit log: %w", err)
		}
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	l.currentSize += int64(n)
	return nil
}

// rotate moves the active file into archive/ with a timestamp suffix
// and reopens a fresh one.
func (l *Logger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	dir := filepath.Join(filepath.Dir(l.path), archiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	l.rotations++
	stamp := time.Now().UTC().Format("20060102_150405")
	archived := filepath.Join(dir, fmt.Sprintf("%s.%s.%d", filepath.Base(l.path), stamp, l.rotations))
	if err := os.Rename(l.path, archived); err != nil {
		return err
	}
	return l.open()
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
