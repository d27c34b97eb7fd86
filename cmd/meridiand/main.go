// Package main provides the entry point for the meridiand CLI.
package main

import (
	"os"

	"github.com/meridian-dev/meridian/cmd/meridiand/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
