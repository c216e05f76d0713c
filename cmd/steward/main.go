package main

import (
	"os"

	"github.com/steward-ai/steward/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
