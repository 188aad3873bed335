// Package filterip drops packets whose source IPv4 address is listed
// in the blocked_ips map.
package filterip

import (
	"encoding/binary"

	"github.com/cilium/ebpf"
	"github.com/nfgraph/nfgraph/internal/nf"
)

// Action is the NF's two-variant return enum.
type Action int

const (
	ActionAllow Action = iota
	ActionBlock
)

// FilterMaps is the NF's declared map parameter: one hash map from a
// big-endian IPv4 address to a block flag.
type FilterMaps struct {
	BlockedIPs nf.Map[uint32, bool]
}

// Packet allows everything except IPv4 packets whose source address is
// present in BlockedIPs with a true value; non-IPv4 traffic is blocked.
func Packet(pkt nf.Packet, maps *FilterMaps) Action {
	proto := pkt.SliceFrom(12, 2)
	if proto == nil || !(proto[0] == 0x08 && proto[1] == 0x00) {
		return ActionBlock
	}

	addrBytes := pkt.SliceFrom(26, 4)
	if addrBytes == nil {
		return ActionBlock
	}
	addr := binary.BigEndian.Uint32(addrBytes)

	if blocked, ok := maps.BlockedIPs.Get(addr); ok && blocked {
		return ActionBlock
	}
	return ActionAllow
}

// UserNFProgram is the generated user-space wrapper contract:
// it rebinds the positional raw-map vector into FilterMaps by position.
var UserNFProgram nf.UserNFFunc = func(pkt []byte, maps []*ebpf.Map) int {
	fm := &FilterMaps{}
	if len(maps) > 0 {
		fm.BlockedIPs = nf.NewRawMap[uint32, bool](maps[0])
	}
	return int(Packet(nf.NewBytesPacket(pkt), fm))
}
