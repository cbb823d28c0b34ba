package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the overture version",
		Args:  maxArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "overture %s\n", version.Version)
		},
	}
}
