package main

import (
	"os"

	"github.com/agentbazaar/bazaar/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
