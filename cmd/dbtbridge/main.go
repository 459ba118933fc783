// Package main provides the dbtbridge CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/dbtbridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
