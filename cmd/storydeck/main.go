package main

import (
	"fmt"
	"os"

	"github.com/roach88/storydeck/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	root.SilenceErrors = true
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
