package dataplane

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

// newTestRing lays a producer/consumer ring out in ordinary heap memory
// with the same field layout mapRing derives from XDP_MMAP_OFFSETS, so
// the queue types can be exercised without an AF_XDP socket.
func newTestRing(entries uint32, descSize int) *ring {
	mem := make([]byte, 64+int(entries)*descSize)
	return &ring{
		mem:      mem,
		producer: (*uint32)(unsafe.Pointer(&mem[0])),
		consumer: (*uint32)(unsafe.Pointer(&mem[8])),
		flags:    (*uint32)(unsafe.Pointer(&mem[16])),
		descOff:  64,
		size:     entries,
		mask:     entries - 1,
	}
}

func TestFillCompletion_RoundTrip(t *testing.T) {
	r := newTestRing(8, 8)
	fq := &FillQueue{r: r}
	cq := &CompletionQueue{r: r}

	in := []FrameDesc{{Addr: 0}, {Addr: 2048}, {Addr: 4096}}
	if n := fq.Produce(in); n != len(in) {
		t.Fatalf("Produce = %d, want %d", n, len(in))
	}

	out := make([]FrameDesc, 8)
	n := cq.Consume(out)
	if n != len(in) {
		t.Fatalf("Consume = %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i].Addr != in[i].Addr {
			t.Errorf("out[%d].Addr = %d, want %d", i, out[i].Addr, in[i].Addr)
		}
	}

	if n := cq.Consume(out); n != 0 {
		t.Fatalf("Consume on drained ring = %d, want 0", n)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := newTestRing(4, 8)
	fq := &FillQueue{r: r}
	cq := &CompletionQueue{r: r}
	out := make([]FrameDesc, 4)

	// Two produce/consume cycles of 3 on a 4-slot ring force the
	// indices past the mask boundary.
	for round := uint64(0); round < 2; round++ {
		in := []FrameDesc{{Addr: round*100 + 1}, {Addr: round*100 + 2}, {Addr: round*100 + 3}}
		if n := fq.Produce(in); n != 3 {
			t.Fatalf("round %d: Produce = %d, want 3", round, n)
		}
		if n := cq.Consume(out); n != 3 {
			t.Fatalf("round %d: Consume = %d, want 3", round, n)
		}
		for i := range in {
			if out[i].Addr != in[i].Addr {
				t.Errorf("round %d: out[%d].Addr = %d, want %d", round, i, out[i].Addr, in[i].Addr)
			}
		}
	}
}

func TestTxRx_ProduceThenPollAndConsume(t *testing.T) {
	r := newTestRing(8, xdpDescSize)
	tx := &TxQueue{r: r}
	rx := &RxQueue{r: r}

	// A readable pipe stands in for the socket fd so Poll reports POLLIN
	// immediately; flags stay zero so ProduceAndWakeup skips the kick.
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])
	if _, err := unix.Write(p[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	in := []FrameDesc{{Addr: 2048, Len: 60}, {Addr: 4096, Len: 1500}}
	if err := tx.ProduceAndWakeup(p[0], in); err != nil {
		t.Fatalf("ProduceAndWakeup: %v", err)
	}

	out := make([]FrameDesc, 8)
	n, err := rx.PollAndConsume(p[0], out, 10)
	if err != nil {
		t.Fatalf("PollAndConsume: %v", err)
	}
	if n != len(in) {
		t.Fatalf("PollAndConsume = %d, want %d", n, len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %+v, want %+v", i, out[i], in[i])
		}
	}

	// Ring drained: a second poll finds nothing even though the fd is
	// still readable.
	n, err = rx.PollAndConsume(p[0], out, 10)
	if err != nil || n != 0 {
		t.Fatalf("second PollAndConsume = (%d, %v), want (0, nil)", n, err)
	}
}

func TestTxQueue_EmptyProduceIsNoop(t *testing.T) {
	r := newTestRing(4, xdpDescSize)
	tx := &TxQueue{r: r}
	if err := tx.ProduceAndWakeup(-1, nil); err != nil {
		t.Fatalf("ProduceAndWakeup(nil) = %v, want nil", err)
	}
	if got := r.producerIdx(); got != 0 {
		t.Fatalf("producer advanced to %d on empty produce", got)
	}
}
