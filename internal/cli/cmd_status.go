package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/status"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show lock, task, and last-run state",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, "warn")
			return status.Run(root, jsonOutput, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")

	return cmd
}
