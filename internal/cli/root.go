// Package cli provides the Cobra command tree for overture.
package cli

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/version"
)

// rootDir is the --dir global flag: the project root to operate on.
var rootDir string

// UsageError marks errors that should exit with code 2.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// ExitCode maps an Execute error to the process exit code: 0 success,
// 2 usage errors, 1 everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "overture",
		Short: "Agent-driven development loop orchestrator",
		Long: `overture - agent-driven development loop orchestrator

Overture drives an external coding agent through a plan, task-generation,
implement, validate, fix, and review loop, guarding each project with a
crash-safe run lock and validating every change against configured gate
commands.`,
		Version:       version.Version,
		SilenceErrors: true, // main prints errors and maps exit codes
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&rootDir, "dir", ".", "project root directory")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newStatusCmd(),
		newUnlockCmd(),
		newMonitorCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}

// projectRoot resolves the --dir flag to an absolute path.
func projectRoot() (string, error) {
	return filepath.Abs(rootDir)
}

// maxArgs is cobra.MaximumNArgs with usage-error classification.
func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &UsageError{Err: err}
		}
		return nil
	}
}
