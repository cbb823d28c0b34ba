package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := NewLogger(path, 0)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log("phase_started", map[string]any{
		"run_id": "r-1", "phase": "implement", "task_id": "2.3",
	}))
	require.NoError(t, l.Log("gate_failed", map[string]any{
		"run_id": "r-1", "command": "go test ./...",
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2)

	assert.Equal(t, "phase_started", entries[0].Event)
	assert.Equal(t, "r-1", entries[0].RunID)
	assert.Equal(t, "implement", entries[0].Phase)
	assert.Equal(t, "2.3", entries[0].TaskID)
	assert.NotZero(t, entries[0].Timestamp)

	assert.Equal(t, "gate_failed", entries[1].Event)
	assert.Equal(t, "go test ./...", entries[1].Details["command"])
}

func TestLog_DoesNotMutateCallerDetails(t *testing.T) {
	l, err := NewLogger(filepath.Join(t.TempDir(), "events.jsonl"), 0)
	require.NoError(t, err)
	defer l.Close()

	// Callers reuse detail maps across events; lifting run_id/phase/
	// task_id must not strip them from the caller's copy.
	details := map[string]any{
		"run_id": "r-1", "phase": "implement", "task_id": "2.3", "extra": 42,
	}
	require.NoError(t, l.Log("phase_started", details))

	assert.Equal(t, "r-1", details["run_id"])
	assert.Equal(t, "implement", details["phase"])
	assert.Equal(t, "2.3", details["task_id"])
	assert.Equal(t, 42, details["extra"])
	assert.Len(t, details, 4)
}

func TestLog_RotatesAtSizeCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	l, err := NewLogger(path, 200)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Log("tick", map[string]any{"i": i, "pad": "xxxxxxxxxxxxxxxxxxxx"}))
	}

	archives, err := os.ReadDir(filepath.Join(dir, "archive"))
	require.NoError(t, err)
	assert.NotEmpty(t, archives, "expected at least one rotated file")

	// Active file still exists and is under the cap.
	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, stat.Size(), int64(200))
}

func TestClose_Idempotent(t *testing.T) {
	l, err := NewLogger(filepath.Join(t.TempDir(), "events.jsonl"), 0)
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
