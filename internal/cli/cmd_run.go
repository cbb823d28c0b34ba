package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/lock"
	"github.com/skondo/overture/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	var skipReview bool
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestration loop",
		Long: `Run the full loop: plan and generate tasks when none exist, then
implement each pending task, validate it against the configured gates,
and fix failures until the gates pass or attempts run out.

Exactly one run may be active per project; a second run fails with the
holder's PID and elapsed time.`,
		Args: maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			if skipReview {
				cfg.Loop.SkipReview = true
			}
			if maxIterations > 0 {
				cfg.Loop.MaxIterations = maxIterations
			}

			logger, closeLog, err := runLogger(root, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loop, err := orchestrator.New(root, cfg, logger, orchestrator.Options{
				Out: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}

			err = loop.Run(ctx)
			var held *lock.HeldError
			if errors.As(err, &held) {
				fmt.Fprintf(cmd.ErrOrStderr(),
					"another run is active: %v\nrelease it with 'overture unlock --force' if it is no longer running\n", held)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&skipReview, "skip-review", false, "skip the final review phase")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the configured iteration limit")

	return cmd
}

// runLogger writes to stderr and to .overture/logs/run.log, filtered by
// the configured level.
func runLogger(root, level string) (logger *log.Logger, closeFn func(), err error) {
	path := config.LogPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	l := newLogger(io.MultiWriter(os.Stderr, file), level)
	return l, func() { _ = file.Close() }, nil
}
