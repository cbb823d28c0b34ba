// Command overture orchestrates an agent-driven development loop.
package main

import (
	"fmt"
	"os"

	"github.com/skondo/overture/internal/cli"
)

func main() {
	err := cli.Execute(os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
