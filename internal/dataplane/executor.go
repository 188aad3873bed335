package dataplane

import (
	"encoding/binary"

	"github.com/cilium/ebpf"
	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/install"
)

// Role describes how one core's loop disposes of spent UMEM frames.
// Exactly one of Mediate or (Push + nothing) applies:
//
//   - The fq/cq owner (FirstThread mode, core 0 only) sets Mediate and
//     RemoteRings: it advances cq->fq for its own spent frames, then
//     drains every other core's ring into fq too.
//   - A non-owner core (any core when an ExtraThread owns fq/cq, or
//     every core but 0 in FirstThread mode) sets Push: its own spent
//     frames go onto that ring for the owner to reclaim.
type Role struct {
	Mediate     *Mediate
	RemoteRings []DisposalRing
	Push        DisposalRing
}

// RunCore runs one core's receive -> decide -> dispatch -> transmit
// loop until ctrl signals shutdown. cs is this core's socket and
// frame pool; state is the installed chain's dense-index and link-state
// tables; dylibs resolves the user-space NF to invoke by id.
func RunCore(cs *CoreSocket, role Role, state *install.ChainState, dylibs *DylibStore, ctrl *Controller, pollTimeoutMs int, counters *Counters) {
	spent := make([]FrameDesc, 0, len(cs.Frames))

	// pending holds spent descriptors a full disposal ring refused;
	// they are retried next iteration so no descriptor ever leaks from
	// the pool. Bounded by the pool size: a frame can't be received
	// again until the fq/cq owner has recycled it.
	var pending []FrameDesc

	for {
		if ctrl.ShouldStop() {
			return
		}

		numTx, recvd := runOneBatch(cs, state, dylibs, pollTimeoutMs, counters)

		// Hot-path failures never panic. ProduceAndWakeup only fails on
		// the wakeup kick, after the descriptors are already on the tx
		// ring, so the spent frames below are recycled either way.
		if err := cs.Socket.Tx.ProduceAndWakeup(cs.Socket.FD, cs.Frames[:numTx]); err == nil {
			counters.addTransmitted(uint64(numTx))
		}

		switch {
		case role.Mediate != nil:
			spent = spent[:0]
			spent = append(spent, cs.Frames[numTx:recvd]...)
			reclaimed := make([]FrameDesc, recvd)
			n := role.Mediate.Completion.Consume(reclaimed)
			role.Mediate.Fill.Produce(spent)
			role.Mediate.Fill.Produce(reclaimed[:n])
			for _, ring := range role.RemoteRings {
				spent = spent[:0]
				spent = ring.Drain(spent)
				role.Mediate.Fill.Produce(spent)
			}
		case role.Push != nil:
			pending = append(pending, cs.Frames[numTx:recvd]...)
			n := role.Push.Push(pending)
			pending = pending[:copy(pending, pending[n:])]
		}
	}
}

// runOneBatch is one poll iteration: poll the receive queue, decode
// each frame's upcall provenance, run its entry NF to completion, and
// partition the batch in place so [0, numTx) is ready to transmit.
func runOneBatch(cs *CoreSocket, state *install.ChainState, dylibs *DylibStore, pollTimeoutMs int, counters *Counters) (numTx, recvd int) {
	recvdN, err := cs.Socket.Rx.PollAndConsume(cs.Socket.FD, cs.Frames, pollTimeoutMs)
	if err != nil || recvdN == 0 {
		return 0, 0
	}
	counters.addReceived(uint64(recvdN))

	numTx = recvdN
	i := 0
	for i < numTx {
		frame := cs.Frames[i]
		entry, ok := decodeEntry(cs.UMEM, frame, state, counters)
		if !ok {
			numTx--
			cs.Frames[i], cs.Frames[numTx] = cs.Frames[numTx], cs.Frames[i]
			continue
		}

		body := cs.UMEM.Data(frame)
		doTx := runToCompletion(entry, body, state, dylibs, counters)

		if doTx {
			i++
		} else {
			numTx--
			cs.Frames[i], cs.Frames[numTx] = cs.Frames[numTx], cs.Frames[i]
		}
	}

	return numTx, recvdN
}

// decodeEntry reads a frame's headroom and resolves it to the NF id
// the user-space chain should start from. A malformed or absent
// headroom drops the frame silently, counted only.
func decodeEntry(u *UMEM, frame FrameDesc, state *install.ChainState, counters *Counters) (uuid.UUID, bool) {
	hdr := u.Headroom(frame)
	if len(hdr) != HeadroomSize {
		counters.incHeadroomDrop()
		return uuid.UUID{}, false
	}

	progID := binary.NativeEndian.Uint32(hdr[0:4])
	returnIdx := binary.NativeEndian.Uint32(hdr[4:8])

	srcID, ok := state.InstanceIDs[progID]
	if !ok {
		counters.incHeadroomDrop()
		return uuid.UUID{}, false
	}

	action := state.LinkStates[srcID].Act(returnIdx)
	next, ok := action.NextNF()
	if !ok {
		// A non-forwarding action reaching upcall entry would mean the
		// in-kernel wrapper mis-dispatched; treat it as a drop rather
		// than panic.
		counters.incHeadroomDrop()
		return uuid.UUID{}, false
	}
	return next, true
}

// runToCompletion repeatedly invokes the current NF's user-space
// symbol, following Tailcall/Upcall actions until a terminal action
// fires. Returns whether the packet should be
// transmitted.
func runToCompletion(entry uuid.UUID, body []byte, state *install.ChainState, dylibs *DylibStore, counters *Counters) bool {
	current := entry
	for {
		fn, ok := dylibs.Lookup(current)
		if !ok {
			// No user-space payload for this NF: nothing to run,
			// treat as abort.
			counters.incAborted()
			return false
		}

		maps := rawMapVector(state, current)
		retIdx := fn(body, maps)
		if retIdx < 0 {
			// Arity sentinel: the map vector didn't match what the
			// NF's wrapper expected.
			counters.incAborted()
			return false
		}

		ls, ok := state.LinkStates[current]
		if !ok {
			counters.incAborted()
			return false
		}
		action := ls.Act(uint32(retIdx))

		switch action.Kind {
		case chain.ActionTailcall, chain.ActionUpcall:
			if action.Kind == chain.ActionTailcall {
				counters.incTailcalled()
			} else {
				counters.incUpcalled()
			}
			current = action.Next
			continue
		case chain.ActionTx:
			return true
		case chain.ActionDrop:
			counters.incDropped()
			return false
		case chain.ActionPass:
			counters.incPassed()
			return false
		default: // ActionAbort
			counters.incAborted()
			return false
		}
	}
}

func rawMapVector(state *install.ChainState, id uuid.UUID) []*ebpf.Map {
	return state.RawMaps[id]
}
