// Package gate executes a project's configured validation commands
// (lint, type-check, test, ...) and aggregates one pass/fail verdict.
// Gate failure is signal for the fix loop, not a system error: Run never
// returns an error and never retries on its own.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy selects how gate commands are scheduled.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
)

// Shell exit conventions the runner folds command-level failures into.
const (
	ExitTimeout      = 124 // command exceeded its per-command timeout
	ExitSpawnFailure = 127 // command could not be started at all
)

// CommandResult is the immutable outcome of one validation command.
type CommandResult struct {
	Command   string
	Succeeded bool
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
}

// failureText is the error text fed into the fix agent's next
// instruction: stderr excerpt when present, stdout otherwise.
func (c CommandResult) failureText() string {
	msg := strings.TrimSpace(c.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(c.Stdout)
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", c.ExitCode)
	}
	return fmt.Sprintf("%s: %s", c.Command, truncate(msg, 400))
}

// Result is the aggregate outcome of one gate run. Succeeded is true iff
// every command succeeded; FirstFailure is the error text of the
// lowest-index failing command regardless of strategy or completion
// order, so the fix instruction is deterministic.
type Result struct {
	Succeeded    bool
	Commands     []CommandResult
	FirstFailure string
	Duration     time.Duration
}

// Runner executes gate commands through the platform shell, inheriting
// the orchestration process's environment. Command strings come from
// project-local configuration; they are trusted input.
type Runner struct {
	dir    string
	logger *log.Logger
}

// NewRunner creates a Runner executing commands in dir. A nil logger
// sends per-command logs to stderr.
func NewRunner(dir string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Runner{dir: dir, logger: logger}
}

// Run executes the commands under the given strategy. An empty command
// list passes trivially. The sequential strategy logs each command as it
// completes; the parallel strategy launches all commands at once, waits
// for every one of them (a failure never cancels the rest), and logs in
// original command order only after all have finished.
func (r *Runner) Run(ctx context.Context, commands []string, strategy Strategy, perCommandTimeout time.Duration) Result {
	if len(commands) == 0 {
		return Result{Succeeded: true, Commands: []CommandResult{}}
	}

	start := time.Now()
	results := make([]CommandResult, len(commands))

	switch strategy {
	case StrategyParallel:
		var g errgroup.Group
		for i, command := range commands {
			i, command := i, command
			g.Go(func() error {
				results[i] = r.runOne(ctx, command, perCommandTimeout)
				return nil
			})
		}
		_ = g.Wait()
		for _, res := range results {
			r.logResult(res)
		}
	default:
		for i, command := range commands {
			results[i] = r.runOne(ctx, command, perCommandTimeout)
			r.logResult(results[i])
		}
	}

	result := Result{Succeeded: true, Commands: results, Duration: time.Since(start)}
	for _, res := range results {
		if !res.Succeeded {
			result.Succeeded = false
			result.FirstFailure = res.failureText()
			break
		}
	}
	return result
}

// killGracePeriod is how long a timed-out command's process group gets
// to exit after SIGINT before it is SIGKILLed.
const killGracePeriod = 2 * time.Second

// runOne executes a single command string through the platform shell.
// Failure to even start the command is recorded as exit 127, not
// propagated: a command that cannot start is simply a failed command.
//
// The shell runs in its own process group. On timeout the whole group is
// signaled: killing only the shell would leave descendants holding the
// stdout/stderr pipes, and Wait would block until the last of them
// exited.
func (r *Runner) runOne(ctx context.Context, command string, timeout time.Duration) CommandResult {
	result := CommandResult{Command: command}
	start := time.Now()

	cmdCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, flag := platformShell()
	cmd := exec.Command(shell, flag, command)
	cmd.Dir = r.dir
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		// Spawn failure: shell missing, permission denied, ...
		result.Duration = time.Since(start)
		result.ExitCode = ExitSpawnFailure
		result.Stderr = err.Error()
		return result
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
	case <-cmdCtx.Done():
		timedOut = errors.Is(cmdCtx.Err(), context.DeadlineExceeded)
		interruptGroup(cmd)
		select {
		case waitErr = <-waitDone:
		case <-time.After(killGracePeriod):
			killGroup(cmd)
			waitErr = <-waitDone
		}
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	switch {
	case timedOut:
		result.ExitCode = ExitTimeout
		result.Stderr = fmt.Sprintf("timed out after %s", timeout)
	case waitErr == nil:
		result.Succeeded = true
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = ExitSpawnFailure
			result.Stderr = waitErr.Error()
		}
	}
	return result
}

func (r *Runner) logResult(res CommandResult) {
	status := "ok"
	if !res.Succeeded {
		status = "failed"
	}
	r.logger.Printf("[INFO] gate command %s exit=%d duration_ms=%d command=%q",
		status, res.ExitCode, res.Duration.Milliseconds(), res.Command)
}

func platformShell() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/c"
	}
	return "sh", "-c"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
