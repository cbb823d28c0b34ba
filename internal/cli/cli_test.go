package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/lock"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "overture dev")
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "init", dir, "--name", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")

	_, statErr := os.Stat(config.ConfigPath(dir))
	assert.NoError(t, statErr)

	// Second init refuses.
	_, _, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestStatusCmd_JSON(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "status", "--dir", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"locked": false`)
}

func TestUnlockCmd(t *testing.T) {
	dir := t.TempDir()

	// Nothing to do.
	out, _, err := execute(t, "unlock", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "no lock present")

	// Live lock refuses without --force.
	mgr := lock.NewManager(config.LockPath(dir), nil)
	require.NoError(t, mgr.Acquire(os.Getpid(), "run", nil))

	_, _, err = execute(t, "unlock", "--dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	// --force removes it.
	out, _, err = execute(t, "unlock", "--dir", dir, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "lock removed")
	assert.False(t, mgr.Inspect().Locked)
}

func TestUnlockCmd_StaleLock(t *testing.T) {
	dir := t.TempDir()

	// A record owned by a PID that cannot exist.
	lockPath := config.LockPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0755))
	require.NoError(t, os.WriteFile(lockPath, []byte(
		`{"version":"1","pid":999999,"started":"2024-01-01T00:00:00Z","command":"run"}`), 0644))

	out, _, err := execute(t, "unlock", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "lock removed")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 2, ExitCode(&UsageError{Err: errors.New("bad flag")}))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("wrapped: %w", &UsageError{Err: errors.New("x")})))
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, _, err := execute(t, "status", "--bogus")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestTooManyArgsIsUsageError(t *testing.T) {
	_, _, err := execute(t, "status", "extra")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestLevelWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")

	logger.Printf("[DEBUG] hidden")
	logger.Printf("[INFO] hidden too")
	logger.Printf("[WARN] shown")
	logger.Printf("[ERROR] shown too")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown")
	assert.Contains(t, out, "[ERROR] shown too")
}
