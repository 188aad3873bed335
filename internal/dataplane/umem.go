// Package dataplane is the agent's Upcall Socket Layer and
// Hot-path Executor: zero-copy AF_XDP receive sockets backed by
// a shared UMEM frame pool, and the per-core run-to-completion loop
// that chains dynamic-library NFs driven by headroom-encoded
// provenance. Built directly on golang.org/x/sys/unix's raw AF_XDP
// syscalls; no maintained Go library wraps AF_XDP at this level.
package dataplane

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NumFrames is the fixed frame-pool size per UMEM.
const NumFrames = 2048

// FrameHeadroom is the per-frame headroom reserved for upcall
// metadata, sized to hold {prog_id, return_index}.
const FrameHeadroom = 8

// HeadroomSize is the exact byte length of the upcall metadata
// header: a ProgId plus a u32 return index.
const HeadroomSize = 8

// defaultFrameSize is the per-frame payload budget; large enough for a
// full Ethernet MTU frame plus reserved headroom.
const defaultFrameSize = 2048

// FrameDesc identifies one UMEM frame: its byte offset within the
// shared region and the number of payload bytes currently valid there.
// It passes by value between fill/completion/rx/tx rings and never
// leaks outside the pool that owns it.
type FrameDesc struct {
	Addr uint64
	Len  uint32
}

// UMEM is the shared frame pool backing one or more AF_XDP sockets.
// Frames are addressed by offset into a single mmap'd region; ownership
// passes between the kernel (fill queue), the NIC, user-space (receive)
// and back (completion queue), per the glossary's UMEM entry.
type UMEM struct {
	region    []byte
	frameSize int
	headroom  int
	numFrames int
}

// NewUMEM allocates and page-locks a numFrames*frameSize anonymous
// mapping for use as an AF_XDP UMEM region.
func NewUMEM(numFrames, frameSize, headroom int) (*UMEM, error) {
	total := numFrames * frameSize
	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap umem region (%d bytes): %w", total, err)
	}
	_ = unix.Mlock(region) // best-effort; swapping a live frame pool only costs latency, not correctness

	return &UMEM{region: region, frameSize: frameSize, headroom: headroom, numFrames: numFrames}, nil
}

// Close unmaps the UMEM region. Callers must ensure no socket still
// references it.
func (u *UMEM) Close() error {
	return unix.Munmap(u.region)
}

// InitialFrames returns the FrameDesc for every frame in the pool, in
// index order, ready to be produced onto a fill queue before the
// first poll.
func (u *UMEM) InitialFrames() []FrameDesc {
	out := make([]FrameDesc, u.numFrames)
	for i := range out {
		out[i] = FrameDesc{Addr: uint64(i * u.frameSize), Len: 0}
	}
	return out
}

// Headroom returns the frame's reserved headroom bytes: the region
// between the frame's base address and its data start, where the
// upcall metadata is written.
func (u *UMEM) Headroom(f FrameDesc) []byte {
	base := int(f.Addr)
	return u.region[base : base+u.headroom]
}

// Data returns the frame's payload: exactly f.Len bytes starting right
// after the headroom.
func (u *UMEM) Data(f FrameDesc) []byte {
	base := int(f.Addr) + u.headroom
	return u.region[base : base+int(f.Len)]
}

// DataCap returns the frame's full writable payload capacity, used by
// the tx path when building an outbound frame from scratch.
func (u *UMEM) DataCap(f FrameDesc) []byte {
	base := int(f.Addr) + u.headroom
	return u.region[base : base+u.frameSize-u.headroom]
}
