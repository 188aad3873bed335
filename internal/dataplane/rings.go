package dataplane

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AF_XDP socket-level constants (linux/if_xdp.h), hand-carried here
// since golang.org/x/sys/unix does not export the if_xdp.h option
// numbers as named constants (only unix.AF_XDP and unix.SockaddrXDP
// itself). These are kernel uAPI numbers, not a fabricated dependency.
const (
	solXDP = 283

	xdpMmapOffsets        = 1
	xdpRxRing             = 2
	xdpTxRing             = 3
	xdpUmemReg            = 4
	xdpUmemFillRing       = 5
	xdpUmemCompletionRing = 6

	xdpPgoffRxRing               = 0
	xdpPgoffTxRing               = 0x80000000
	xdpUmemPgoffFillRing         = 0x100000000
	xdpUmemPgoffCompletionRing   = 0x180000000

	// XDP_RING_NEED_WAKEUP: set by the kernel in a ring's flags word.
	xdpRingNeedWakeup = 1 << 0
)

// xdpUmemRegT mirrors struct xdp_umem_reg.
type xdpUmemRegT struct {
	Addr      uint64
	Len       uint64
	ChunkSize uint32
	Headroom  uint32
	Flags     uint32
}

// xdpRingOffsetT mirrors struct xdp_ring_offset.
type xdpRingOffsetT struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// xdpMmapOffsetsT mirrors struct xdp_mmap_offsets.
type xdpMmapOffsetsT struct {
	Rx, Tx, Fr, Cr xdpRingOffsetT
}

func setsockoptRaw(fd, level, opt int, value unsafe.Pointer, size uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt), uintptr(value), size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockoptRaw(fd, level, opt int, value unsafe.Pointer, size *uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt), uintptr(value), uintptr(unsafe.Pointer(size)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ring is a shared producer/consumer ring mmap'd from the kernel,
// underlying the fill, completion, rx, and tx queues. desc points at
// the ring's descriptor array: xdp_desc{addr,len,options} for rx/tx,
// bare u64 addresses for fill/completion.
type ring struct {
	mem      []byte
	producer *uint32
	consumer *uint32
	flags    *uint32
	descOff  uint32
	size     uint32
	mask     uint32
	cached   uint32 // local shadow of the peer's index, to batch syscall-free checks
}

func mapRing(fd int, off xdpRingOffsetT, pgoff int64, numEntries uint32, descSize uintptr) (*ring, error) {
	length := int(off.Desc) + int(numEntries)*int(descSize)
	mem, err := unix.Mmap(fd, pgoff, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("mmap ring (off %d): %w", pgoff, err)
	}
	return &ring{
		mem:      mem,
		producer: (*uint32)(unsafe.Pointer(&mem[off.Producer])),
		consumer: (*uint32)(unsafe.Pointer(&mem[off.Consumer])),
		flags:    (*uint32)(unsafe.Pointer(&mem[off.Flags])),
		descOff:  uint32(off.Desc),
		size:     numEntries,
		mask:     numEntries - 1,
	}, nil
}

func (r *ring) close() error {
	if r == nil || r.mem == nil {
		return nil
	}
	return unix.Munmap(r.mem)
}

func (r *ring) producerIdx() uint32 { return atomic.LoadUint32(r.producer) }
func (r *ring) consumerIdx() uint32 { return atomic.LoadUint32(r.consumer) }

// FillQueue hands empty frames to the kernel for future RX use.
type FillQueue struct{ r *ring }

// Produce enqueues descs onto the fill queue for the kernel to fill.
func (q *FillQueue) Produce(descs []FrameDesc) int {
	if len(descs) == 0 {
		return 0
	}
	prod := q.r.producerIdx()
	base := q.r.descOff
	for i, d := range descs {
		slot := (prod + uint32(i)) & q.r.mask
		addrPtr := (*uint64)(unsafe.Pointer(&q.r.mem[base+slot*8]))
		*addrPtr = d.Addr
	}
	atomic.StoreUint32(q.r.producer, prod+uint32(len(descs)))
	return len(descs)
}

// CompletionQueue reclaims frames the kernel has finished transmitting.
type CompletionQueue struct{ r *ring }

// Consume drains up to len(out) completed frame addresses into out,
// returning how many were filled.
func (q *CompletionQueue) Consume(out []FrameDesc) int {
	avail := q.r.producerIdx() - q.r.consumerIdx()
	n := uint32(len(out))
	if avail < n {
		n = avail
	}
	if n == 0 {
		return 0
	}
	cons := q.r.consumerIdx()
	base := q.r.descOff
	for i := uint32(0); i < n; i++ {
		slot := (cons + i) & q.r.mask
		addrPtr := (*uint64)(unsafe.Pointer(&q.r.mem[base+slot*8]))
		out[i] = FrameDesc{Addr: *addrPtr}
	}
	atomic.StoreUint32(q.r.consumer, cons+n)
	return int(n)
}

// xdpDesc mirrors struct xdp_desc used by the rx/tx rings.
type xdpDesc struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

const xdpDescSize = 16

// RxQueue receives populated frame descriptors from the kernel.
type RxQueue struct{ r *ring }

// PollAndConsume polls the owning socket's fd for readability up to
// timeoutMs, then drains up to len(out) received frames.
func (q *RxQueue) PollAndConsume(fd int, out []FrameDesc, timeoutMs int) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfd, timeoutMs); err != nil {
		return 0, err
	}
	avail := q.r.producerIdx() - q.r.consumerIdx()
	n := uint32(len(out))
	if avail < n {
		n = avail
	}
	if n == 0 {
		return 0, nil
	}
	cons := q.r.consumerIdx()
	base := q.r.descOff
	for i := uint32(0); i < n; i++ {
		slot := (cons + i) & q.r.mask
		d := (*xdpDesc)(unsafe.Pointer(&q.r.mem[base+slot*xdpDescSize]))
		out[i] = FrameDesc{Addr: d.Addr, Len: d.Len}
	}
	atomic.StoreUint32(q.r.consumer, cons+n)
	return int(n), nil
}

// TxQueue submits frames for transmission.
type TxQueue struct{ r *ring }

// ProduceAndWakeup enqueues descs onto the tx ring and kicks the kernel
// via a sendto(2) if the ring requests a wakeup (XDP_USE_NEED_WAKEUP).
func (q *TxQueue) ProduceAndWakeup(fd int, descs []FrameDesc) error {
	if len(descs) == 0 {
		return nil
	}
	prod := q.r.producerIdx()
	base := q.r.descOff
	for i, fr := range descs {
		slot := (prod + uint32(i)) & q.r.mask
		d := (*xdpDesc)(unsafe.Pointer(&q.r.mem[base+slot*xdpDescSize]))
		d.Addr, d.Len, d.Options = fr.Addr, fr.Len, 0
	}
	atomic.StoreUint32(q.r.producer, prod+uint32(len(descs)))

	if atomic.LoadUint32(q.r.flags)&xdpRingNeedWakeup == 0 {
		return nil
	}
	_, err := unix.Sendto(fd, nil, unix.MSG_DONTWAIT, nil)
	if err != nil && err != unix.EAGAIN && err != unix.EBUSY && err != unix.ENOBUFS {
		return fmt.Errorf("tx wakeup: %w", err)
	}
	return nil
}
