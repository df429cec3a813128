// Command hb builds happens-before graphs from SDN event traces.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/happensbefore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
