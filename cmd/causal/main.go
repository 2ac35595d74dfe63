// Command causal inspects, queries and audits causal store histories.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/causal/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
