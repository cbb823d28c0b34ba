package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginUpdateLoad(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "run.yaml"))

	snap, err := j.Begin("run")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.RunID)
	assert.Equal(t, StateRunning, snap.State)

	err = j.Update(snap, func(s *Snapshot) {
		s.Iteration = 3
		s.TaskID = "2.1"
		s.Phase = "implement"
	})
	require.NoError(t, err)

	loaded, ok, err := j.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.RunID, loaded.RunID)
	assert.Equal(t, 3, loaded.Iteration)
	assert.Equal(t, "2.1", loaded.TaskID)
	assert.Equal(t, "implement", loaded.Phase)
}

func TestLoad_Missing(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "run.yaml"))

	_, ok, err := j.Load()

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWrite_NoTempLeftoversAndBackup(t *testing.T) {
	dir := t.TempDir()
	j := New(filepath.Join(dir, "run.yaml"))

	snap, err := j.Begin("run")
	require.NoError(t, err)
	require.NoError(t, j.Update(snap, func(s *Snapshot) { s.Iteration = 1 }))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".overture-tmp-"),
			"temp artifact left behind: %s", e.Name())
		names = append(names, e.Name())
	}
	// Second write backs up the first.
	assert.Contains(t, names, "run.yaml")
	assert.Contains(t, names, "run.yaml.bak")
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t bad"), 0644))

	_, _, err := New(path).Load()

	assert.Error(t, err)
}
