package main

import (
	"fmt"
	"os"

	"github.com/roach88/remerge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands run with SilenceErrors, so this is the only place the
		// failure gets printed.
		fmt.Fprintln(os.Stderr, "remerge:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
