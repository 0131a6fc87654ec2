// Package main provides the entry point for the Oxide CLI.
package main

import (
	"fmt"
	"os"

	"github.com/oxide-run/oxide/cmd/oxide/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
