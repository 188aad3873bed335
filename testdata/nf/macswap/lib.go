// Package macswap swaps the source and destination MAC addresses in
// place.
package macswap

import (
	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// Action is the NF's single-variant return enum.
type Action int

const (
	ActionYes Action = iota
)

// Packet swaps the 6-byte destination and source MAC fields.
func Packet(pkt nf.Packet) Action {
	bytes := pkt.Slice(12)
	if bytes == nil {
		return ActionYes
	}
	dst, src := bytes[:6], bytes[6:12]
	for i := 0; i < 6; i++ {
		dst[i], src[i] = src[i], dst[i]
	}
	return ActionYes
}

// UserNFProgram is the generated user-space wrapper contract.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, _ []*ebpf.Map) int {
	return int(Packet(nf.NewBytesPacket(pkt)))
}
