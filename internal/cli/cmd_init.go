package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/setup"
)

func newInitCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a project's .overture/ directory",
		Long: `Scaffold the .overture/ state directory: config.json with defaults,
an empty progress document, the per-phase prompt files, and the logs
directory. Refuses to touch an existing .overture/.`,
		Args: maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootDir
			if len(args) == 1 {
				dir = args[0]
			}
			if err := setup.Run(dir, name); err != nil {
				return err
			}
			abs, _ := filepath.Abs(dir)
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", config.Dir(abs))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")

	return cmd
}
