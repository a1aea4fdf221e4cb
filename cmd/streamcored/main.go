// Command streamcored runs the stream core as a standalone daemon: one
// process owning a manager.Manager of per-stream actors, the ingest flavors
// configured for it, and the admin HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/nsavage/streamcore/cmd/streamcored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
