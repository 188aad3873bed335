// Command chaind is the compiler/controller process: it turns a
// chain.toml description into compiled artifacts for
// one or more target triples, serves them to agents over
// internal/wire, and persists them through a pluggable store.
package main

import (
	"fmt"
	"os"

	"github.com/nfgraph/nfgraph/cmd/chaind/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
