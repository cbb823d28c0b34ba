// Package agent invokes the external coding-agent binary for a named
// phase and absorbs a fixed class of transient failures via bounded,
// exponentially backed-off retries.
//
// An invocation walks a small state machine over attempts: attempt n
// succeeds on exit 0, fails fatally on a spawn error or a non-retryable
// exit code, and moves to attempt n+1 (after the backoff delay) on a
// retryable exit code while attempts remain. Exhausting the retry budget
// fails with the last observed exit code.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ExitSpawnFailure is reported when the agent binary cannot be started.
const ExitSpawnFailure = 127

// RetryPolicy bounds the invoker's retry behavior. Only exit codes in
// RetryableExitCodes are ever retried; everything else, including plain
// exit 1, fails immediately.
type RetryPolicy struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	RetryableExitCodes map[int]bool
}

// DefaultRetryPolicy models rate-limiting, network, DNS, and timeout
// failures as retryable.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		RetryableExitCodes: map[int]bool{
			75:  true, // EX_TEMPFAIL / rate limited
			111: true, // connection refused
			124: true, // timeout
		},
	}
}

// RetryableCodes builds the policy's code set from a config slice.
func RetryableCodes(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func (p RetryPolicy) retryable(code int) bool {
	return p.RetryableExitCodes[code]
}

// Backoff returns the delay before the retry following attempt index n:
// BaseDelay doubled per attempt, clamped at MaxDelay. No delay is ever
// applied before the first attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// InvocationResult is a closed two-case union: Success always carries
// exit code 0 and no message; Failure always carries a non-empty message.
// Attempts counts every spawn, including the first.
type InvocationResult struct {
	Success  bool
	ExitCode int
	Message  string
	Attempts int
}

func success(attempts int) InvocationResult {
	return InvocationResult{Success: true, ExitCode: 0, Attempts: attempts}
}

func failure(code int, msg string, attempts int) InvocationResult {
	if strings.TrimSpace(msg) == "" {
		msg = fmt.Sprintf("agent exited with code %d", code)
	}
	return InvocationResult{ExitCode: code, Message: msg, Attempts: attempts}
}

// StdioMode selects how the child's stdio is handled.
type StdioMode int

const (
	// StdioInherit forwards the terminal to the agent (interactive and
	// one-shot phase runs).
	StdioInherit StdioMode = iota
	// StdioCapture buffers stdout/stderr so stderr can become the
	// failure message.
	StdioCapture
)

// Invoker spawns the agent process. It never returns Go errors for
// process-level failures; every outcome is folded into the result.
type Invoker struct {
	dir    string
	mode   StdioMode
	logger *log.Logger
	sleep  func(context.Context, time.Duration) bool
}

// NewInvoker creates an Invoker running the agent in dir.
func NewInvoker(dir string, mode StdioMode, logger *log.Logger) *Invoker {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Invoker{dir: dir, mode: mode, logger: logger, sleep: sleepCtx}
}

// Invoke runs argv until it succeeds, fails fatally, or exhausts the
// retry budget. The backoff delay is a suspension point for this
// invocation only; ctx cancellation cuts it short.
func (inv *Invoker) Invoke(ctx context.Context, argv []string, policy RetryPolicy) InvocationResult {
	if len(argv) == 0 {
		return failure(ExitSpawnFailure, "agent command not configured", 0)
	}

	attempt := 0
	for {
		attempts := attempt + 1
		code, stderrText, spawnErr := inv.runOnce(ctx, argv)

		if spawnErr != nil {
			return failure(ExitSpawnFailure,
				fmt.Sprintf("agent binary %q not found. Is it installed and in PATH? (%v)", argv[0], spawnErr),
				attempts)
		}
		if code == 0 {
			if attempt > 0 {
				inv.logger.Printf("[INFO] agent succeeded after retries attempts=%d", attempts)
			}
			return success(attempts)
		}

		if policy.retryable(code) && attempt < policy.MaxRetries {
			delay := policy.Backoff(attempt)
			inv.logger.Printf("[WARN] agent exit retryable code=%d attempt=%d/%d backoff_ms=%d",
				code, attempts, policy.MaxRetries+1, delay.Milliseconds())
			if !inv.sleep(ctx, delay) {
				return failure(code, "invocation interrupted during retry backoff", attempts)
			}
			attempt++
			continue
		}

		return failure(code, strings.TrimSpace(stderrText), attempts)
	}
}

// runOnce spawns one attempt. A non-nil spawnErr means the process never
// started (missing binary, permissions) and is fatal to the invocation.
func (inv *Invoker) runOnce(ctx context.Context, argv []string) (int, string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.dir

	var stdout, stderr bytes.Buffer
	switch inv.mode {
	case StdioCapture:
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	default:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return ExitSpawnFailure, "", err
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), stderr.String(), nil
		}
		// Wait failures outside ExitError are I/O-level; fold them into
		// a non-retryable exit.
		return 1, err.Error(), nil
	}
	return 0, stderr.String(), nil
}

// sleepCtx waits for d or until ctx is done; reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
