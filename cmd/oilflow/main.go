// Command oilflow tracks edible-oil orders through the fulfilment pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/oilflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
