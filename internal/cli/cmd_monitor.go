package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of the project's orchestration state",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot()
			if err != nil {
				return err
			}
			return monitor.Run(root, newLogger(os.Stderr, "warn"))
		},
	}
}
