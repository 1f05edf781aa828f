// Command forge is a headless coding agent. It runs a prompt through the
// conversation loop, streaming tool activity as it happens.
package main

import (
	"fmt"
	"os"

	"github.com/forgeagent/forge/cmd/forge/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
