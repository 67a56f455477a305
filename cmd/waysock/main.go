// Package main provides the entrypoint for the waysock CLI.
package main

import (
	"fmt"
	"os"

	"waysock.dev/go/waysock/internal/cli"
)

// Set via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version)
	cli.SetBuildInfo(commit, buildDate)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
