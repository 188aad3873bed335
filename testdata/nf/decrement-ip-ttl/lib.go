// Package decrementipttl decrements an IPv4/IPv6 hop-limit field in
// place.
package decrementipttl

import (
	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// Action is the NF's single-variant return enum: decrement-ip-ttl never
// branches, it always continues along its sole outgoing link.
type Action int

const (
	ActionYes Action = iota
)

// Packet decrements the IPv4 TTL / IPv6 hop-limit byte in place, or
// leaves the packet untouched if it's too short or not IP.
func Packet(pkt nf.Packet) Action {
	bytes := pkt.Slice(23)
	if bytes == nil {
		return ActionYes
	}

	var ttlIdx int
	switch {
	case bytes[12] == 0x08 && bytes[13] == 0x00:
		ttlIdx = 14 + 8 // ipv4
	case bytes[12] == 0x86 && bytes[13] == 0xDD:
		ttlIdx = 14 + 7 // ipv6
	default:
		return ActionYes
	}

	if bytes[ttlIdx] > 0 {
		bytes[ttlIdx]--
	}
	return ActionYes
}

// UserNFProgram is the generated user-space wrapper contract.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, _ []*ebpf.Map) int {
	return int(Packet(nf.NewBytesPacket(pkt)))
}
