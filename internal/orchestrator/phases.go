package orchestrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skondo/overture/internal/agent"
	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/journal"
	"github.com/skondo/overture/internal/progress"
	"github.com/skondo/overture/templates"
)

const (
	phasePlan      = "plan"
	phaseTasks     = "tasks"
	phaseImplement = "implement"
	phaseGate      = "gate"
	phaseFix       = "fix"
	phaseReview    = "review"
)

// planningPhases runs plan then task generation when the progress file
// has no task table yet.
func (l *Loop) planningPhases(ctx context.Context, snap *journal.Snapshot) error {
	for _, phase := range []string{phasePlan, phaseTasks} {
		if err := l.journal.Update(snap, func(s *journal.Snapshot) { s.Phase = phase }); err != nil {
			l.logger.Printf("[WARN] journal update failed error=%v", err)
		}
		instruction, err := l.loadPrompt(phase, nil)
		if err != nil {
			return err
		}
		if err := l.invokePhase(ctx, snap, phase, instruction); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) implementPhase(ctx context.Context, snap *journal.Snapshot, task progress.Task) error {
	instruction, err := l.loadPrompt(phaseImplement, map[string]string{
		"%TASK_ID%":    task.ID,
		"%TASK_TITLE%": task.Title,
	})
	if err != nil {
		return err
	}
	return l.invokePhase(ctx, snap, phaseImplement, instruction)
}

func (l *Loop) fixPhase(ctx context.Context, snap *journal.Snapshot, task progress.Task, failure string) error {
	instruction, err := l.loadPrompt(phaseFix, map[string]string{
		"%TASK_ID%": task.ID,
		"%FAILURE%": failure,
	})
	if err != nil {
		return err
	}
	return l.invokePhase(ctx, snap, phaseFix, instruction)
}

func (l *Loop) reviewPhase(ctx context.Context, snap *journal.Snapshot) error {
	if err := l.journal.Update(snap, func(s *journal.Snapshot) { s.Phase = phaseReview }); err != nil {
		l.logger.Printf("[WARN] journal update failed error=%v", err)
	}
	instruction, err := l.loadPrompt(phaseReview, nil)
	if err != nil {
		return err
	}
	return l.invokePhase(ctx, snap, phaseReview, instruction)
}

// invokePhase runs the agent once for a phase and folds its result into
// the loop's error taxonomy.
func (l *Loop) invokePhase(ctx context.Context, snap *journal.Snapshot, phase, instruction string) error {
	l.event("phase_started", map[string]any{"run_id": snap.RunID, "phase": phase})
	l.logger.Printf("[INFO] phase starting phase=%s", phase)

	result := l.invoker.Invoke(ctx, buildArgv(l.cfg.Agent, instruction), retryPolicy(l.cfg.Retry))
	if !result.Success {
		l.event("phase_failed", map[string]any{
			"run_id": snap.RunID, "phase": phase,
			"exit_code": result.ExitCode, "attempts": result.Attempts,
		})
		return &RunError{
			Phase:  phase,
			Reason: fmt.Sprintf("%s (exit %d after %d attempts)", result.Message, result.ExitCode, result.Attempts),
		}
	}

	l.event("phase_completed", map[string]any{"run_id": snap.RunID, "phase": phase})
	return nil
}

// loadPrompt reads the phase instruction from .overture/prompts/, falling
// back to the embedded default so a half-scaffolded project still runs.
// Placeholders are literal token substitutions, not a template language.
func (l *Loop) loadPrompt(phase string, vars map[string]string) (string, error) {
	name := phase + ".md"
	data, err := os.ReadFile(filepath.Join(config.Dir(l.root), "prompts", name))
	if err != nil {
		data, err = fs.ReadFile(templates.FS, filepath.Join("prompts", name))
		if err != nil {
			return "", fmt.Errorf("load %s prompt: %w", phase, err)
		}
	}

	instruction := string(data)
	for token, value := range vars {
		instruction = strings.ReplaceAll(instruction, token, value)
	}
	return strings.TrimSpace(instruction), nil
}

// buildArgv assembles the agent command line from configuration. Only
// flags with configured values are included.
func buildArgv(cfg config.AgentConfig, instruction string) []string {
	argv := []string{cfg.Command, cfg.PromptFlag, instruction}
	if cfg.AgentFileFlag != "" && cfg.AgentFile != "" {
		argv = append(argv, cfg.AgentFileFlag, cfg.AgentFile)
	}
	if cfg.PermissionFlag != "" && cfg.PermissionMode != "" {
		argv = append(argv, cfg.PermissionFlag, cfg.PermissionMode)
	}
	if cfg.Model != "" {
		flag := cfg.ModelFlag
		if flag == "" {
			flag = "--model"
		}
		argv = append(argv, flag, cfg.Model)
	}
	return argv
}

func retryPolicy(cfg config.RetryConfig) agent.RetryPolicy {
	return agent.RetryPolicy{
		MaxRetries:         cfg.MaxRetries,
		BaseDelay:          time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		MaxDelay:           time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		RetryableExitCodes: agent.RetryableCodes(cfg.RetryableExitCodes),
	}
}
