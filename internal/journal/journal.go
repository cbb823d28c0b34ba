// Package journal persists crash-safe YAML snapshots of the active
// orchestration run. The snapshot is advisory state for status displays
// and post-mortems; the lock file, not the journal, is the mutex.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	yamlv3 "gopkg.in/yaml.v3"
)

const schemaVersion = 1

// RunState labels the snapshot's lifecycle position.
type RunState string

const (
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
)

// Snapshot is one run's persisted progress.
type Snapshot struct {
	SchemaVersion int      `yaml:"schema_version"`
	RunID         string   `yaml:"run_id"`
	Command       string   `yaml:"command"`
	State         RunState `yaml:"state"`
	Iteration     int      `yaml:"iteration"`
	TaskID        string   `yaml:"task_id,omitempty"`
	Phase         string   `yaml:"phase,omitempty"`
	LastFailure   string   `yaml:"last_failure,omitempty"`
	StartedAt     string   `yaml:"started_at"`
	UpdatedAt     string   `yaml:"updated_at"`
}

// Journal reads and writes the snapshot file.
type Journal struct {
	path string
}

func New(path string) *Journal {
	return &Journal{path: path}
}

// Begin creates and persists a fresh snapshot for a new run.
func (j *Journal) Begin(command string) (*Snapshot, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	snap := &Snapshot{
		SchemaVersion: schemaVersion,
		RunID:         uuid.NewString(),
		Command:       command,
		State:         StateRunning,
		StartedAt:     now,
		UpdatedAt:     now,
	}
	if err := j.Write(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Update applies mutate to the snapshot, stamps UpdatedAt, and persists.
func (j *Journal) Update(snap *Snapshot, mutate func(*Snapshot)) error {
	mutate(snap)
	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return j.Write(snap)
}

// Write persists the snapshot atomically.
func (j *Journal) Write(snap *Snapshot) error {
	return atomicWrite(j.path, snap)
}

// Load reads the last persisted snapshot. The boolean reports presence.
func (j *Journal) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read journal: %w", err)
	}
	var snap Snapshot
	if err := yamlv3.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse journal: %w", err)
	}
	return snap, true, nil
}

// atomicWrite marshals data to YAML, writes it to a temp sibling,
// validates the written bytes, backs up any existing file, and renames
// the temp into place. A crash mid-write never corrupts the snapshot.
func atomicWrite(path string, data any) error {
	content, err := yamlv3.Marshal(data)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".overture-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	var v any
	if err := yamlv3.Unmarshal(written, &v); err != nil {
		return fmt.Errorf("yaml validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
