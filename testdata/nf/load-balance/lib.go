// Package loadbalance decides whether a packet should be promoted to
// user-space based on a configurable likelihood.
package loadbalance

import (
	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// Action is the NF's two-variant return enum.
type Action int

const (
	ActionKeepXDP Action = iota
	ActionUpcall
)

// Maps is the NF's declared map parameter: a single-entry array holding
// the configured upcall likelihood (0 = never, ^uint32(0) = always).
type Maps struct {
	UpcallLikelihood nf.Map[uint32, uint32]
}

// Packet upcalls when the configured likelihood is the sentinel "always"
// value or exceeds a random draw, and otherwise stays in-kernel.
func Packet(_ nf.Packet, maps *Maps) Action {
	v, ok := maps.UpcallLikelihood.Get(0)
	if !ok {
		return ActionKeepXDP
	}
	if v == ^uint32(0) || v > nf.RandomU32() {
		return ActionUpcall
	}
	return ActionKeepXDP
}

// UserNFProgram is the generated user-space wrapper contract.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, maps []*ebpf.Map) int {
	m := &Maps{}
	if len(maps) > 0 {
		m.UpcallLikelihood = nf.NewRawMap[uint32, uint32](maps[0])
	}
	return int(Packet(nf.NewBytesPacket(pkt), m))
}
