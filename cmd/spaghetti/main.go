// Command spaghetti compiles, runs, replays and traces dataflow graphs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/spaghetti/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
