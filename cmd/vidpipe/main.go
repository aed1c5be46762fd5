// Package main is the entry point for the vidpipe application.
package main

import (
	"os"

	"github.com/jmylchreest/vidpipe/cmd/vidpipe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
