// Command amrflow is the administrative CLI for the annotation platform.
package main

import (
	"fmt"
	"os"

	"github.com/amrlab/amrflow/cmd/amrflow/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
