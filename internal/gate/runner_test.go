package gate

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(t.TempDir(), log.New(io.Discard, "", 0))
}

func TestRun_EmptyCommandsPassTrivially(t *testing.T) {
	r := testRunner(t)

	result := r.Run(context.Background(), nil, StrategySequential, time.Second)

	assert.True(t, result.Succeeded)
	assert.Empty(t, result.Commands)
	assert.Empty(t, result.FirstFailure)
	assert.Equal(t, time.Duration(0), result.Duration)
}

func TestRun_SequentialAggregation(t *testing.T) {
	r := testRunner(t)
	commands := []string{
		"echo first",
		"echo boom >&2; exit 3",
		"true",
		"exit 5",
	}

	result := r.Run(context.Background(), commands, StrategySequential, 5*time.Second)

	require.Len(t, result.Commands, 4)
	assert.False(t, result.Succeeded)

	assert.True(t, result.Commands[0].Succeeded)
	assert.Equal(t, "first\n", result.Commands[0].Stdout)

	assert.False(t, result.Commands[1].Succeeded)
	assert.Equal(t, 3, result.Commands[1].ExitCode)
	assert.Contains(t, result.Commands[1].Stderr, "boom")

	assert.True(t, result.Commands[2].Succeeded)
	assert.Equal(t, 5, result.Commands[3].ExitCode)

	// First failure is the lowest-index failing command.
	assert.Contains(t, result.FirstFailure, "echo boom")
	assert.Contains(t, result.FirstFailure, "boom")
}

func TestRun_AllPass(t *testing.T) {
	r := testRunner(t)

	result := r.Run(context.Background(), []string{"true", "echo ok"}, StrategySequential, 5*time.Second)

	assert.True(t, result.Succeeded)
	assert.Empty(t, result.FirstFailure)
	for _, c := range result.Commands {
		assert.True(t, c.Succeeded)
		assert.Equal(t, 0, c.ExitCode)
	}
}

func TestRun_ParallelPreservesOrderAndWaitsForAll(t *testing.T) {
	r := testRunner(t)
	commands := []string{
		"exit 1",
		"sleep 0.2 && echo slow-ok",
	}

	result := r.Run(context.Background(), commands, StrategyParallel, 5*time.Second)

	require.Len(t, result.Commands, 2)
	assert.False(t, result.Succeeded)

	// The early failure must not cancel or starve the slow command.
	assert.True(t, result.Commands[1].Succeeded)
	assert.Contains(t, result.Commands[1].Stdout, "slow-ok")

	// Results stay in original command order.
	assert.Equal(t, commands[0], result.Commands[0].Command)
	assert.Equal(t, commands[1], result.Commands[1].Command)
}

func TestRun_ParallelFirstFailureByIndexNotCompletion(t *testing.T) {
	r := testRunner(t)
	commands := []string{
		"sleep 0.3; exit 7", // fails last in time, first by index
		"exit 9",
	}

	result := r.Run(context.Background(), commands, StrategyParallel, 5*time.Second)

	assert.False(t, result.Succeeded)
	assert.Contains(t, result.FirstFailure, "exit 7")
	assert.Contains(t, result.FirstFailure, "exit status 7")
}

func TestRun_Timeout(t *testing.T) {
	r := testRunner(t)

	result := r.Run(context.Background(), []string{"sleep 5"}, StrategySequential, 100*time.Millisecond)

	require.Len(t, result.Commands, 1)
	assert.False(t, result.Succeeded)
	assert.Equal(t, ExitTimeout, result.Commands[0].ExitCode)
	assert.Contains(t, result.Commands[0].Stderr, "timed out after")
}

func TestRun_TimeoutKillsLingeringChildren(t *testing.T) {
	r := testRunner(t)

	// The background child outlives the shell and holds the output
	// pipes; only a process-group kill lets the run return on time.
	start := time.Now()
	result := r.Run(context.Background(), []string{"sleep 10 & sleep 10"}, StrategySequential, 200*time.Millisecond)
	elapsed := time.Since(start)

	require.Len(t, result.Commands, 1)
	assert.False(t, result.Succeeded)
	assert.Equal(t, ExitTimeout, result.Commands[0].ExitCode)
	assert.Less(t, elapsed, 5*time.Second,
		"timeout must bound the run even with a lingering background child")
}

func TestRun_CommandNotFound(t *testing.T) {
	r := testRunner(t)

	result := r.Run(context.Background(), []string{"definitely-not-a-binary-xyz"}, StrategySequential, 5*time.Second)

	require.Len(t, result.Commands, 1)
	assert.False(t, result.Succeeded)
	assert.Equal(t, ExitSpawnFailure, result.Commands[0].ExitCode)
	assert.NotEmpty(t, result.FirstFailure)
}

func TestFailureText_FallsBackToExitStatus(t *testing.T) {
	c := CommandResult{Command: "make lint", ExitCode: 2}
	assert.Equal(t, "make lint: exit status 2", c.failureText())

	c.Stdout = "lint output\n"
	assert.Equal(t, "make lint: lint output", c.failureText())

	c.Stderr = "real error\n"
	assert.Equal(t, "make lint: real error", c.failureText())
}
