package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(Dir(root), 0755))
	require.NoError(t, os.WriteFile(ConfigPath(root), []byte(content), 0644))
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root), cfg.Project.Name)
	assert.Equal(t, "claude", cfg.Agent.Command)
	assert.Equal(t, "sequential", cfg.Gates.Strategy)
	assert.Equal(t, []int{75, 111, 124}, cfg.Retry.RetryableExitCodes)
	assert.Equal(t, 3, cfg.Loop.MaxFixAttempts)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{
		"project": {"name": "demo"},
		"gates": {"commands": ["go vet ./...", "go test ./..."], "strategy": "parallel"},
		"retry": {"maxRetries": 5}
	}`)

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, "parallel", cfg.Gates.Strategy)
	assert.Equal(t, []string{"go vet ./...", "go test ./..."}, cfg.Gates.Commands)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	// Untouched sections keep their defaults.
	assert.Equal(t, "claude", cfg.Agent.Command)
	assert.Equal(t, 1000, cfg.Retry.BaseDelayMs)
	assert.Equal(t, 600, cfg.Gates.CommandTimeoutSec)
}

func TestLoad_MalformedJSON(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"project": `)

	_, err := Load(root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.json")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad strategy", func(c *Config) { c.Gates.Strategy = "shuffled" }, "gates.strategy"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "maxRetries"},
		{"max below base", func(c *Config) { c.Retry.MaxDelayMs = 10 }, "maxDelayMs"},
		{"empty command", func(c *Config) { c.Agent.Command = "" }, "agent.command"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("x")
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	assert.NoError(t, Default("x").Validate())
}

func TestLoad_ValidationFailure(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"gates": {"strategy": "random"}}`)

	_, err := Load(root)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gates.strategy")
}
