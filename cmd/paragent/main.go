// Command paragent runs a batch of dependent tasks across coding agent CLIs.
package main

import (
	"os"

	"github.com/Iron-Ham/paragent/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
