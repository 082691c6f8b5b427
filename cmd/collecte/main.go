// Package main is the entry point for the collecte CLI.
package main

import (
	"os"

	"info-collecte/cmd/collecte/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
