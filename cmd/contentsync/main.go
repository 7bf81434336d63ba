// Command contentsync manages and serves the local content store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/contentsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}

	// ExitErrors were already reported in the selected output format.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "contentsync: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
