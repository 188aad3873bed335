// Package destipbranch branches four ways on the low bit pair of the
// destination IP address.
package destipbranch

import (
	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// Action is the NF's four-variant return enum; the chain builder sizes
// its acts_map to NextPowerOfTwo(4) == 4.
type Action int

const (
	ActionLeft Action = iota
	ActionRight
	ActionUp
	ActionDown
)

// Packet branches on the low two bits of the IPv4/IPv6 destination
// address's least-significant byte.
func Packet(pkt nf.Packet) Action {
	proto := pkt.SliceFrom(12, 2)
	if proto == nil {
		return ActionLeft
	}

	var addrLSBIdx int
	switch {
	case proto[0] == 0x08 && proto[1] == 0x00:
		addrLSBIdx = 14 + 19 // ipv4
	case proto[0] == 0x86 && proto[1] == 0xDD:
		addrLSBIdx = 14 + 39 // ipv6
	default:
		return ActionLeft
	}

	b := pkt.SliceFrom(addrLSBIdx, 1)
	if b == nil {
		return ActionLeft
	}
	switch b[0] % 4 {
	case 0:
		return ActionLeft
	case 1:
		return ActionRight
	case 2:
		return ActionUp
	default:
		return ActionDown
	}
}

// UserNFProgram is the generated user-space wrapper contract.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, _ []*ebpf.Map) int {
	return int(Packet(nf.NewBytesPacket(pkt)))
}
