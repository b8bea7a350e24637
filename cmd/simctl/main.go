package main

import (
	"os"

	"github.com/stitts-dev/tourney-sim-dashboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
