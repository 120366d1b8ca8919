// Package main provides the entry point for the sysgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sysgate-io/sysgate/cmd/sysgate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
