package dataplane

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const defaultRingSize = 2048

// Mediate bundles the fill/completion queue pair a socket owns. Only
// the first socket in a shared pool receives fq/cq; every other
// socket's Mediate is nil.
type Mediate struct {
	Fill       *FillQueue
	Completion *CompletionQueue
}

// Socket is one core's AF_XDP receive/transmit endpoint: a bound
// SOCK_RAW/AF_XDP file descriptor plus its rx/tx rings and, if it owns
// the UMEM registration, its fill/completion queues.
type Socket struct {
	FD      int
	Tx      *TxQueue
	Rx      *RxQueue
	Mediate *Mediate
	umem    *UMEM
	owns    bool // true if this socket registered the UMEM (first in a shared pool, or unshared)
}

// NewSocket opens and binds an AF_XDP socket on ifaceIndex/queueID.
// When owns is true the socket registers umem and creates its fill and
// completion rings; when false it binds with XDP_SHARED_UMEM against
// sharedFD, the first socket's fd in the pool, and never sees fq/cq.
func NewSocket(ifaceIndex, queueID int, u *UMEM, owns bool, sharedFD int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_XDP): %w", err)
	}

	s := &Socket{FD: fd, umem: u, owns: owns}

	if owns {
		reg := xdpUmemRegT{
			Addr:      uint64(uintptr(unsafe.Pointer(&u.region[0]))),
			Len:       uint64(len(u.region)),
			ChunkSize: uint32(u.frameSize),
			Headroom:  uint32(u.headroom),
		}
		if err := setsockoptRaw(fd, solXDP, xdpUmemReg, unsafe.Pointer(&reg), unsafe.Sizeof(reg)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("XDP_UMEM_REG: %w", err)
		}
		if err := setsockoptRaw(fd, solXDP, xdpUmemFillRing, unsafe.Pointer(ptrU32(defaultRingSize)), 4); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("XDP_UMEM_FILL_RING: %w", err)
		}
		if err := setsockoptRaw(fd, solXDP, xdpUmemCompletionRing, unsafe.Pointer(ptrU32(defaultRingSize)), 4); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("XDP_UMEM_COMPLETION_RING: %w", err)
		}
	}

	if err := setsockoptRaw(fd, solXDP, xdpRxRing, unsafe.Pointer(ptrU32(defaultRingSize)), 4); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("XDP_RX_RING: %w", err)
	}
	if err := setsockoptRaw(fd, solXDP, xdpTxRing, unsafe.Pointer(ptrU32(defaultRingSize)), 4); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("XDP_TX_RING: %w", err)
	}

	var off xdpMmapOffsetsT
	size := unsafe.Sizeof(off)
	if err := getsockoptRaw(fd, solXDP, xdpMmapOffsets, unsafe.Pointer(&off), &size); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("XDP_MMAP_OFFSETS: %w", err)
	}

	rx, err := mapRing(fd, off.Rx, xdpPgoffRxRing, defaultRingSize, xdpDescSize)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	tx, err := mapRing(fd, off.Tx, xdpPgoffTxRing, defaultRingSize, xdpDescSize)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.Rx = &RxQueue{r: rx}
	s.Tx = &TxQueue{r: tx}

	if owns {
		fr, err := mapRing(fd, off.Fr, xdpUmemPgoffFillRing, defaultRingSize, 8)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		cr, err := mapRing(fd, off.Cr, xdpUmemPgoffCompletionRing, defaultRingSize, 8)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		s.Mediate = &Mediate{Fill: &FillQueue{r: fr}, Completion: &CompletionQueue{r: cr}}
	}

	// No copy/zero-copy flag is forced: the kernel negotiates zero-copy
	// when the driver supports it and falls back to copy mode itself.
	// A sharing socket may carry no flag besides XDP_SHARED_UMEM; it
	// inherits the owner's mode.
	sa := &unix.SockaddrXDP{
		Flags:   unix.XDP_USE_NEED_WAKEUP,
		Ifindex: uint32(ifaceIndex),
		QueueID: uint32(queueID),
	}
	if !owns {
		sa.Flags = unix.XDP_SHARED_UMEM
		sa.SharedUmemFD = uint32(sharedFD)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind af_xdp socket (iface %d queue %d): %w", ifaceIndex, queueID, err)
	}

	return s, nil
}

// Close releases the socket's rings and file descriptor. The UMEM
// itself is released separately by its owner.
func (s *Socket) Close() error {
	s.Rx.r.close()
	s.Tx.r.close()
	if s.Mediate != nil {
		s.Mediate.Fill.r.close()
		s.Mediate.Completion.r.close()
	}
	return unix.Close(s.FD)
}

func ptrU32(v uint32) *uint32 { return &v }
