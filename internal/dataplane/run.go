package dataplane

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nfgraph/nfgraph/internal/install"
	"github.com/nfgraph/nfgraph/internal/logger"
)

// Options configures one agent's dataplane run. The caller has
// already built sockets via BuildSockets, since the installer
// needs each socket's file descriptor before xsk_map can be patched.
type Options struct {
	NumCores      int
	ShareUMEM     bool
	Mode          DisposalMode
	PollTimeoutMs int
}

// Run is the agent's hot-path orchestrator: given the sockets
// BuildSockets already opened, it assigns each core's disposal Role
// per mode, pins core i's goroutine to CPU i+1, and runs every core
// loop until ctrl signals shutdown. It returns the
// per-core counters and a Join function that blocks until every
// spawned goroutine (including the optional disposal thread) has
// returned.
func Run(opts Options, sockets []*CoreSocket, state *install.ChainState, dylibs *DylibStore, ctrl *Controller) ([]*Counters, func(), error) {
	if len(sockets) != opts.NumCores {
		return nil, nil, fmt.Errorf("dataplane: got %d sockets for %d cores", len(sockets), opts.NumCores)
	}

	counters := make([]*Counters, opts.NumCores)
	for i := range counters {
		counters[i] = &Counters{}
	}

	var wg sync.WaitGroup

	if !opts.ShareUMEM || opts.NumCores == 1 {
		// Each core owns its own pool (or there is only one core), so
		// every socket mediates its own fq/cq with no remote rings.
		for i, cs := range sockets {
			spawnCore(&wg, cs, Role{Mediate: cs.Socket.Mediate}, state, dylibs, ctrl, opts.PollTimeoutMs, counters[i], i)
		}
		return counters, wg.Wait, nil
	}

	switch opts.Mode {
	case DisposalExtraThread:
		// Every core, including 0, only produces spent descriptors; the
		// dedicated thread below is the sole fq/cq owner, draining one
		// ring per core.
		rings := make([]DisposalRing, opts.NumCores)
		for i := range rings {
			rings[i] = NewDisposalRing()
		}
		for i, cs := range sockets {
			spawnCore(&wg, cs, Role{Push: rings[i]}, state, dylibs, ctrl, opts.PollTimeoutMs, counters[i], i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDisposalThread(sockets[0].Socket.Mediate, rings, ctrl)
		}()

	default: // DisposalFirstThread
		// Core 0 owns fq/cq and drains core i's ring at rings[i-1].
		rings := make([]DisposalRing, opts.NumCores-1)
		for i := range rings {
			rings[i] = NewDisposalRing()
		}
		for i, cs := range sockets {
			if i == 0 {
				spawnCore(&wg, cs, Role{Mediate: cs.Socket.Mediate, RemoteRings: rings}, state, dylibs, ctrl, opts.PollTimeoutMs, counters[i], i)
				continue
			}
			spawnCore(&wg, cs, Role{Push: rings[i-1]}, state, dylibs, ctrl, opts.PollTimeoutMs, counters[i], i)
		}
	}

	return counters, wg.Wait, nil
}

func spawnCore(wg *sync.WaitGroup, cs *CoreSocket, role Role, state *install.ChainState, dylibs *DylibStore, ctrl *Controller, pollTimeoutMs int, counters *Counters, core int) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pinToCore(core + 1); err != nil {
			logger.Warn("cpu pin failed", "core", core, "error", err)
		}
		RunCore(cs, role, state, dylibs, ctrl, pollTimeoutMs, counters)
	}()
}

// runDisposalThread is the ExtraThread mode's dedicated fq/cq owner:
// it owns no rx/tx traffic of its own, only drains every core's
// disposal ring and advances cq->fq on each iteration.
func runDisposalThread(mediate *Mediate, rings []DisposalRing, ctrl *Controller) {
	spent := make([]FrameDesc, 0, NumFrames)
	reclaimed := make([]FrameDesc, NumFrames)
	for {
		if ctrl.ShouldStop() {
			return
		}
		n := mediate.Completion.Consume(reclaimed)
		mediate.Fill.Produce(reclaimed[:n])
		for _, ring := range rings {
			spent = spent[:0]
			spent = ring.Drain(spent)
			mediate.Fill.Produce(spent)
		}
	}
}

// pinToCore sets the calling OS thread's CPU affinity to exactly cpu.
// Callers must have locked the goroutine to its OS thread first for
// the pin to stick.
func pinToCore(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
