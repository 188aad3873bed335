package dataplane

import (
	"encoding/binary"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/install"
	"github.com/nfgraph/nfgraph/internal/nf"
)

func stampHeadroom(t *testing.T, u *UMEM, f FrameDesc, progID, returnIdx uint32) {
	t.Helper()
	hdr := u.Headroom(f)
	binary.NativeEndian.PutUint32(hdr[0:4], progID)
	binary.NativeEndian.PutUint32(hdr[4:8], returnIdx)
}

func TestDecodeEntry(t *testing.T) {
	u, err := NewUMEM(4, 256, FrameHeadroom)
	if err != nil {
		t.Fatalf("NewUMEM: %v", err)
	}
	defer u.Close()

	src := uuid.New()
	target := uuid.New()
	state := &install.ChainState{
		InstanceIDs: map[uint32]uuid.UUID{3: src},
		LinkStates: map[uuid.UUID]chain.XdpLinkState{
			src: {Actions: []chain.LinkAction{
				{Kind: chain.ActionUpcall, Next: target},
				{Kind: chain.ActionDrop},
			}},
		},
	}

	frame := FrameDesc{Addr: 0, Len: 0}

	var c Counters
	stampHeadroom(t, u, frame, 3, 0)
	got, ok := decodeEntry(u, frame, state, &c)
	if !ok || got != target {
		t.Fatalf("decodeEntry(valid upcall) = (%s, %v), want (%s, true)", got, ok, target)
	}

	// A return index whose action is terminal never enters the
	// user-space chain.
	stampHeadroom(t, u, frame, 3, 1)
	if _, ok := decodeEntry(u, frame, state, &c); ok {
		t.Fatalf("decodeEntry(terminal action) = ok, want drop")
	}

	// Unknown prog id.
	stampHeadroom(t, u, frame, 99, 0)
	if _, ok := decodeEntry(u, frame, state, &c); ok {
		t.Fatalf("decodeEntry(unknown prog id) = ok, want drop")
	}

	if drops := c.Load().HeadroomDrop; drops != 2 {
		t.Fatalf("HeadroomDrop = %d, want 2", drops)
	}
}

func TestDecodeEntry_WrongHeadroomSize(t *testing.T) {
	// A pool whose reserved headroom is not exactly 8 bytes can never
	// carry valid upcall metadata; every frame from it is dropped.
	u, err := NewUMEM(2, 256, 4)
	if err != nil {
		t.Fatalf("NewUMEM: %v", err)
	}
	defer u.Close()

	var c Counters
	if _, ok := decodeEntry(u, FrameDesc{Addr: 0}, &install.ChainState{}, &c); ok {
		t.Fatalf("decodeEntry with %d-byte headroom = ok, want drop", 4)
	}
	if drops := c.Load().HeadroomDrop; drops != 1 {
		t.Fatalf("HeadroomDrop = %d, want 1", drops)
	}
}

func testDylibs(fns map[uuid.UUID]nf.UserNFFunc) *DylibStore {
	return &DylibStore{symbols: fns}
}

func TestRunToCompletion(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	state := &install.ChainState{
		LinkStates: map[uuid.UUID]chain.XdpLinkState{
			a: {Actions: []chain.LinkAction{
				{Kind: chain.ActionTailcall, Next: b},
				{Kind: chain.ActionDrop},
				{Kind: chain.ActionUpcall, Next: b},
				{Kind: chain.ActionPass},
			}},
			b: {Tail: true},
		},
	}

	// The NF under test returns whatever the first payload byte says.
	echo := nf.UserNFFunc(func(pkt []byte, _ []*ebpf.Map) int { return int(pkt[0]) })
	tailTx := nf.UserNFFunc(func(_ []byte, _ []*ebpf.Map) int { return 0 })
	dylibs := testDylibs(map[uuid.UUID]nf.UserNFFunc{a: echo, b: tailTx})

	tests := []struct {
		name   string
		body   []byte
		wantTx bool
		check  func(s Snapshot) bool
	}{
		{"tailcall then tail tx", []byte{0}, true, func(s Snapshot) bool { return s.Tailcalled == 1 }},
		{"drop", []byte{1}, false, func(s Snapshot) bool { return s.Dropped == 1 }},
		{"upcall then tail tx", []byte{2}, true, func(s Snapshot) bool { return s.Upcalled == 1 }},
		{"pass", []byte{3}, false, func(s Snapshot) bool { return s.Passed == 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Counters
			if got := runToCompletion(a, tt.body, state, dylibs, &c); got != tt.wantTx {
				t.Fatalf("runToCompletion = %v, want %v", got, tt.wantTx)
			}
			if !tt.check(c.Load()) {
				t.Fatalf("counters = %+v", c.Load())
			}
		})
	}
}

func TestRunToCompletion_AbortPaths(t *testing.T) {
	a := uuid.New()
	state := &install.ChainState{
		LinkStates: map[uuid.UUID]chain.XdpLinkState{
			a: {Actions: []chain.LinkAction{{Kind: chain.ActionAbort}}},
		},
	}

	t.Run("missing dylib", func(t *testing.T) {
		var c Counters
		if runToCompletion(a, []byte{0}, state, testDylibs(nil), &c) {
			t.Fatalf("missing dylib transmitted")
		}
		if c.Load().Aborted != 1 {
			t.Fatalf("Aborted = %d, want 1", c.Load().Aborted)
		}
	})

	t.Run("arity sentinel", func(t *testing.T) {
		// The wrapper's arity sentinel maps to a negative int here.
		bad := nf.UserNFFunc(func(_ []byte, _ []*ebpf.Map) int { return -1 })
		var c Counters
		if runToCompletion(a, []byte{0}, state, testDylibs(map[uuid.UUID]nf.UserNFFunc{a: bad}), &c) {
			t.Fatalf("arity-sentinel return transmitted")
		}
		if c.Load().Aborted != 1 {
			t.Fatalf("Aborted = %d, want 1", c.Load().Aborted)
		}
	})

	t.Run("abort action", func(t *testing.T) {
		zero := nf.UserNFFunc(func(_ []byte, _ []*ebpf.Map) int { return 0 })
		var c Counters
		if runToCompletion(a, []byte{0}, state, testDylibs(map[uuid.UUID]nf.UserNFFunc{a: zero}), &c) {
			t.Fatalf("abort action transmitted")
		}
		if c.Load().Aborted != 1 {
			t.Fatalf("Aborted = %d, want 1", c.Load().Aborted)
		}
	})
}

// TestRunOneBatch_Partition drives one full poll iteration through an
// in-memory rx ring and checks the batch partition invariant: [0, numTx)
// and [numTx, recvd) cover every received descriptor exactly once.
func TestRunOneBatch_Partition(t *testing.T) {
	u, err := NewUMEM(8, 256, FrameHeadroom)
	if err != nil {
		t.Fatalf("NewUMEM: %v", err)
	}
	defer u.Close()

	src := uuid.New()
	a := uuid.New()
	state := &install.ChainState{
		InstanceIDs: map[uint32]uuid.UUID{3: src},
		LinkStates: map[uuid.UUID]chain.XdpLinkState{
			src: {Actions: []chain.LinkAction{
				{Kind: chain.ActionUpcall, Next: a},
				{Kind: chain.ActionDrop},
			}},
			a: {Actions: []chain.LinkAction{
				{Kind: chain.ActionTx},
				{Kind: chain.ActionDrop},
			}},
		},
	}
	echo := nf.UserNFFunc(func(pkt []byte, _ []*ebpf.Map) int { return int(pkt[0]) })
	dylibs := testDylibs(map[uuid.UUID]nf.UserNFFunc{a: echo})

	// Four frames: transmitted, terminal-action drop, unknown prog id,
	// NF-decided drop.
	frames := []FrameDesc{
		{Addr: 0, Len: 1},
		{Addr: 256, Len: 1},
		{Addr: 512, Len: 1},
		{Addr: 768, Len: 1},
	}
	stampHeadroom(t, u, frames[0], 3, 0)
	u.Data(frames[0])[0] = 0 // a returns 0 -> Tx
	stampHeadroom(t, u, frames[1], 3, 1)
	stampHeadroom(t, u, frames[2], 99, 0)
	stampHeadroom(t, u, frames[3], 3, 0)
	u.Data(frames[3])[0] = 1 // a returns 1 -> Drop

	ring := newTestRing(8, xdpDescSize)
	staging := &TxQueue{r: ring}
	if err := staging.ProduceAndWakeup(-1, frames); err != nil {
		t.Fatalf("stage rx ring: %v", err)
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])
	if _, err := unix.Write(p[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	cs := &CoreSocket{
		Core:   0,
		Socket: &Socket{FD: p[0], Rx: &RxQueue{r: ring}},
		Frames: u.InitialFrames(),
		UMEM:   u,
	}

	var c Counters
	numTx, recvd := runOneBatch(cs, state, dylibs, 10, &c)
	if recvd != len(frames) {
		t.Fatalf("recvd = %d, want %d", recvd, len(frames))
	}
	if numTx != 1 {
		t.Fatalf("numTx = %d, want 1", numTx)
	}
	if cs.Frames[0].Addr != 0 {
		t.Fatalf("transmit slot holds Addr %d, want 0", cs.Frames[0].Addr)
	}

	// No descriptor leaked, none double-counted.
	seen := map[uint64]int{}
	for _, f := range cs.Frames[:recvd] {
		seen[f.Addr]++
	}
	for _, f := range frames {
		if seen[f.Addr] != 1 {
			t.Fatalf("descriptor %d appears %d times in partition, want 1", f.Addr, seen[f.Addr])
		}
	}

	snap := c.Load()
	if snap.Received != 4 || snap.HeadroomDrop != 2 || snap.Dropped != 1 {
		t.Fatalf("counters = %+v", snap)
	}
}

func TestRunCore_StopsOnShutdown(t *testing.T) {
	ctrl := NewController()
	ctrl.Shutdown()

	// The loop must observe the signal before touching the socket at
	// all; a nil rx queue proves it never polls.
	cs := &CoreSocket{Socket: &Socket{FD: -1}}
	done := make(chan struct{})
	go func() {
		RunCore(cs, Role{}, &install.ChainState{}, testDylibs(nil), ctrl, 1, &Counters{})
		close(done)
	}()
	<-done
}

func TestRun_JoinsAllCores(t *testing.T) {
	ctrl := NewController()
	ctrl.Shutdown()

	mediate := &Mediate{
		Fill:       &FillQueue{r: newTestRing(8, 8)},
		Completion: &CompletionQueue{r: newTestRing(8, 8)},
	}
	sockets := []*CoreSocket{
		{Core: 0, Socket: &Socket{FD: -1, Mediate: mediate}},
		{Core: 1, Socket: &Socket{FD: -1}},
	}

	for _, mode := range []DisposalMode{DisposalFirstThread, DisposalExtraThread} {
		opts := Options{NumCores: 2, ShareUMEM: true, Mode: mode, PollTimeoutMs: 1}
		counters, join, err := Run(opts, sockets, &install.ChainState{}, testDylibs(nil), ctrl)
		if err != nil {
			t.Fatalf("mode %s: Run: %v", mode, err)
		}
		if len(counters) != 2 {
			t.Fatalf("mode %s: got %d counters, want 2", mode, len(counters))
		}
		join()
	}
}

func TestRun_RejectsSocketCountMismatch(t *testing.T) {
	_, _, err := Run(Options{NumCores: 2}, nil, &install.ChainState{}, testDylibs(nil), NewController())
	if err == nil {
		t.Fatalf("Run with 0 sockets for 2 cores = nil error, want rejection")
	}
}
