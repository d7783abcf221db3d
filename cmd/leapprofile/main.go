// Package main provides the CLI for the leapprofile data profiler.
package main

import (
	"os"

	"github.com/leapstack-labs/leapprofile/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
