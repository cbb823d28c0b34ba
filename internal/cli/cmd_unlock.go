package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/lock"
)

func newUnlockCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a stale run lock",
		Long: `Remove the project's run lock. A stale lock (owner process dead) is
removed without confirmation; removing a lock whose owner is still
alive requires --force.`,
		Args: maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}

			mgr := lock.NewManager(config.LockPath(root), newLogger(os.Stderr, "warn"))
			info := mgr.Inspect()

			if !info.Locked {
				fmt.Fprintln(cmd.OutOrStdout(), "no lock present")
				return nil
			}

			if !info.Stale && !force {
				holder := "unknown pid"
				if info.PID != nil {
					holder = fmt.Sprintf("pid %d", *info.PID)
				}
				return fmt.Errorf("lock held by live process %s (elapsed %s); use --force to remove it anyway",
					holder, info.Elapsed)
			}

			if !info.Stale && info.PID != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "removing lock held by live pid %d\n", *info.PID)
			}
			mgr.Release()
			fmt.Fprintln(cmd.OutOrStdout(), "lock removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove the lock even if its owner is alive")

	return cmd
}
