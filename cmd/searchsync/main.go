// Command searchsync keeps search indices in sync with a relational store.
package main

import (
	"os"

	"github.com/custodia-labs/searchsync/internal/adapters/driving/cli"
)

func main() {
	cli.SetSetup(setup)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
