// Command chainagent is the dataplane agent process: it requests a
// compiled chain bundle from chaind, installs the
// in-kernel programs and side tables onto a network interface, binds
// the per-core AF_XDP upcall sockets, loads every user-space NF's
// dynamic library, and runs the hot-path executor until a shutdown
// signal arrives.
package main

import (
	"fmt"
	"os"

	"github.com/nfgraph/nfgraph/cmd/chainagent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
