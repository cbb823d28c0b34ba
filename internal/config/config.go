// Package config loads, merges, and validates the project configuration
// stored at .overture/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the per-project state directory.
const DirName = ".overture"

// Well-known paths inside the project state directory.
func Dir(root string) string          { return filepath.Join(root, DirName) }
func ConfigPath(root string) string   { return filepath.Join(root, DirName, "config.json") }
func LockPath(root string) string     { return filepath.Join(root, DirName, "run.lock") }
func JournalPath(root string) string  { return filepath.Join(root, DirName, "run.yaml") }
func ProgressPath(root string) string { return filepath.Join(root, DirName, "progress.md") }
func EventsPath(root string) string   { return filepath.Join(root, DirName, "logs", "events.jsonl") }
func LogPath(root string) string      { return filepath.Join(root, DirName, "logs", "run.log") }

type Config struct {
	Project ProjectConfig `json:"project"`
	Agent   AgentConfig   `json:"agent"`
	Loop    LoopConfig    `json:"loop"`
	Gates   GatesConfig   `json:"gates"`
	Retry   RetryConfig   `json:"retry"`
	Logging LoggingConfig `json:"logging"`
	Notify  NotifyConfig  `json:"notify"`
}

type ProjectConfig struct {
	Name string `json:"name"`
}

// AgentConfig describes how to invoke the external agent binary. The
// agent is a black box; its stdout/stderr/exit code is the only contract.
type AgentConfig struct {
	Command        string `json:"command"`
	PromptFlag     string `json:"promptFlag"`
	AgentFileFlag  string `json:"agentFileFlag"`
	AgentFile      string `json:"agentFile"`
	PermissionFlag string `json:"permissionFlag"`
	PermissionMode string `json:"permissionMode"`
	ModelFlag      string `json:"modelFlag"`
	Model          string `json:"model"`
}

type LoopConfig struct {
	MaxIterations  int  `json:"maxIterations"`
	MaxFixAttempts int  `json:"maxFixAttempts"`
	SkipReview     bool `json:"skipReview"`
}

type GatesConfig struct {
	Commands          []string `json:"commands"`
	Strategy          string   `json:"strategy"` // "sequential" or "parallel"
	CommandTimeoutSec int      `json:"commandTimeoutSec"`
}

type RetryConfig struct {
	MaxRetries         int   `json:"maxRetries"`
	BaseDelayMs        int   `json:"baseDelayMs"`
	MaxDelayMs         int   `json:"maxDelayMs"`
	RetryableExitCodes []int `json:"retryableExitCodes"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type NotifyConfig struct {
	Enabled bool `json:"enabled"`
}

// Default returns the configuration used when a field (or the whole
// file) is absent.
func Default(projectName string) Config {
	return Config{
		Project: ProjectConfig{Name: projectName},
		Agent: AgentConfig{
			Command:        "claude",
			PromptFlag:     "-p",
			PermissionFlag: "--permission-mode",
			PermissionMode: "acceptEdits",
		},
		Loop: LoopConfig{
			MaxIterations:  25,
			MaxFixAttempts: 3,
		},
		Gates: GatesConfig{
			Strategy:          "sequential",
			CommandTimeoutSec: 600,
		},
		Retry: RetryConfig{
			MaxRetries:         3,
			BaseDelayMs:        1000,
			MaxDelayMs:         10000,
			RetryableExitCodes: []int{75, 111, 124},
		},
		Logging: LoggingConfig{Level: "info"},
		Notify:  NotifyConfig{Enabled: true},
	}
}

// Load reads .overture/config.json under root, merges it over defaults,
// and validates the result. A missing file yields pure defaults; a
// malformed file is an error.
func Load(root string) (Config, error) {
	cfg := Default(filepath.Base(root))

	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ConfigPath(root), err)
	}

	applyDefaults(&cfg, filepath.Base(root))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults refills fields the file explicitly zeroed or omitted.
// Unmarshalling over Default() keeps most defaults; slices and strings
// set to empty still need backstops.
func applyDefaults(cfg *Config, projectName string) {
	def := Default(projectName)
	if cfg.Project.Name == "" {
		cfg.Project.Name = projectName
	}
	if cfg.Agent.Command == "" {
		cfg.Agent.Command = def.Agent.Command
	}
	if cfg.Agent.PromptFlag == "" {
		cfg.Agent.PromptFlag = def.Agent.PromptFlag
	}
	if cfg.Loop.MaxIterations <= 0 {
		cfg.Loop.MaxIterations = def.Loop.MaxIterations
	}
	if cfg.Loop.MaxFixAttempts <= 0 {
		cfg.Loop.MaxFixAttempts = def.Loop.MaxFixAttempts
	}
	if cfg.Gates.Strategy == "" {
		cfg.Gates.Strategy = def.Gates.Strategy
	}
	if cfg.Gates.CommandTimeoutSec <= 0 {
		cfg.Gates.CommandTimeoutSec = def.Gates.CommandTimeoutSec
	}
	if cfg.Retry.BaseDelayMs <= 0 {
		cfg.Retry.BaseDelayMs = def.Retry.BaseDelayMs
	}
	if cfg.Retry.MaxDelayMs <= 0 {
		cfg.Retry.MaxDelayMs = def.Retry.MaxDelayMs
	}
	if cfg.Retry.RetryableExitCodes == nil {
		cfg.Retry.RetryableExitCodes = def.Retry.RetryableExitCodes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// Validate rejects configurations the orchestration runtime cannot honor.
func (c Config) Validate() error {
	if c.Gates.Strategy != "sequential" && c.Gates.Strategy != "parallel" {
		return fmt.Errorf("gates.strategy must be \"sequential\" or \"parallel\", got %q", c.Gates.Strategy)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.maxRetries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelayMs <= 0 {
		return fmt.Errorf("retry.baseDelayMs must be > 0, got %d", c.Retry.BaseDelayMs)
	}
	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		return fmt.Errorf("retry.maxDelayMs (%d) must be >= retry.baseDelayMs (%d)",
			c.Retry.MaxDelayMs, c.Retry.BaseDelayMs)
	}
	if c.Agent.Command == "" {
		return fmt.Errorf("agent.command must not be empty")
	}
	return nil
}
