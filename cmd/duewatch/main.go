package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/roach88/duewatch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
