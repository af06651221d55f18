// Command imaged runs the on-demand image derivation and caching service.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ashgrove/imaged/cmd/imaged/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		var exitErr interface {
			error
			ExitCode() int
		}
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
