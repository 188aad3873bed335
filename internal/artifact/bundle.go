// Package artifact defines the artifact bundle: the serialized
// pairing of per-NF in-kernel objects, user dylibs, and the link
// table, carried over the wire as internal/wire's Chain response.
package artifact

import "github.com/nfgraph/nfgraph/internal/chain"

// Bundle is the compiled chain artifact served to an agent.
type Bundle struct {
	Links []chain.XdpLink
	NFs   map[string]chain.InstalledFunction // keyed by InstalledFunction.ID.String()
}
