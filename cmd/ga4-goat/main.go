package main

import (
	"os"

	"github.com/gkobilansky/ga4-goat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
