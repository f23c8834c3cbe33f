package main

import (
	"os"

	"github.com/raymoo/monoidal-effects/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
