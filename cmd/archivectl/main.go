// Command archivectl is the operator CLI over the flight archive: search the
// index, show and delete records, reprocess a flight from its stored raw
// inputs, and scan for index/store divergence.
package main

import (
	"os"

	"github.com/cosmiconair/flight-dose-etl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
