package install

import (
	"bytes"
	"fmt"

	"github.com/cilium/ebpf"
	xdplink "github.com/cilium/ebpf/link"
	"github.com/google/uuid"
	"github.com/vishvananda/netlink"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// EntrySymbol is the well-known in-kernel program name every generated
// wrapper exports.
const EntrySymbol = "outer_xdp_sock_prog"

// Well-known per-NF side table names.
const (
	mapActs     = "acts_map"
	mapProgs    = "progs_map"
	mapMyState  = "my_state_map"
	mapXsk      = "xsk_map"
)

// dataplaneState mirrors the in-kernel my_state_map value struct
// written by the generated wrapper's codegen: {prog_id,
// num_cores}, two native-endian uint32s back to back.
type dataplaneState struct {
	ProgID   uint32
	NumCores uint32
}

// loadedNF is phase-1 bookkeeping for one NF: its opened collection and
// the program/map handles pulled out of it, keyed by NF id so phase 2
// can cross-reference without re-opening anything.
type loadedNF struct {
	collection *ebpf.Collection
	prog       *ebpf.Program
	rawMaps    []*ebpf.Map // NF's declared maps, in declaration order
	isRoot     bool
}

// ChainState is everything the hot-path executor needs after a
// successful install: the dense prog-id -> NF-id table stamped into
// headroom on upcall, the typed link-action table per NF, and each
// NF's declared raw map handles for user-space dispatch.
type ChainState struct {
	InstanceIDs map[uint32]uuid.UUID
	LinkStates  map[uuid.UUID]chain.XdpLinkState
	RawMaps     map[uuid.UUID][]*ebpf.Map
	RootLink    xdplink.Link
}

// Close detaches the root program by closing RootLink; the loaded
// collections and their maps are not closed.
func (s *ChainState) Close() error {
	if s.RootLink != nil {
		return s.RootLink.Close()
	}
	return nil
}

// Install is the Dataplane Installer. It loads each NF's
// in-kernel object (link-form for Body, tail-form for Tail), resolves
// program file descriptors, patches acts_map/progs_map/my_state_map/
// xsk_map for every Body NF, and attaches the sole root NF's program to
// ifaceName. xskFDs holds one receive-socket file descriptor per core,
// in core order.
func Install(links map[uuid.UUID]*chain.XdpLink, nfs map[string]chain.InstalledFunction, ifaceName string, numCores uint32, xskFDs []int) (*ChainState, error) {
	iface, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return nil, &Error{Stage: StageInterfaceLookup, Detail: fmt.Errorf("%q: %w", ifaceName, err)}
	}

	loaded := make(map[uuid.UUID]*loadedNF, len(links))
	denseIndex := make(map[uuid.UUID]uint32, len(links))
	var rootID uuid.UUID
	haveRoot := false

	// Phase 1: load every object, record its program fd and declared
	// map handles. No in-memory cycle is constructed here; the kernel
	// owns the eventual link between programs. A disable_xdp NF has no
	// in-kernel payload at all: it gets no dense index and no program
	// fd, and is only ever reached by upcall, so it is skipped here
	// rather than rejected.
	idx := uint32(0)
	for id, xl := range links {
		nf, ok := nfs[id.String()]
		if !ok {
			return nil, &Error{Stage: StageMissingNFPayload, NF: id}
		}
		if nf.EBPF == nil {
			if xl.DisableXDP {
				continue
			}
			return nil, &Error{Stage: StageMissingNFPayload, NF: id}
		}

		objBytes := nf.EBPF.LinkForm
		if xl.State.Tail {
			objBytes = nf.EBPF.TailForm
		}

		spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(objBytes))
		if err != nil {
			return nil, &Error{Stage: StageLoadObject, NF: id, Detail: err}
		}
		coll, err := ebpf.NewCollection(spec)
		if err != nil {
			return nil, &Error{Stage: StageLoadObject, NF: id, Detail: err}
		}

		prog, ok := coll.Programs[EntrySymbol]
		if !ok {
			coll.Close()
			return nil, &Error{Stage: StageMissingEntrySymbol, NF: id}
		}

		rawMaps := make([]*ebpf.Map, 0, len(xl.MapNames))
		for _, name := range xl.MapNames {
			m, ok := coll.Maps[toMapSymbol(name)]
			if !ok {
				coll.Close()
				return nil, &Error{Stage: StageMissingRequiredMap, NF: id, Detail: fmt.Errorf("map %q", name)}
			}
			rawMaps = append(rawMaps, m)
		}

		loaded[id] = &loadedNF{collection: coll, prog: prog, rawMaps: rawMaps, isRoot: xl.Root}
		denseIndex[id] = idx
		if xl.Root {
			if haveRoot {
				return nil, &Error{Stage: StageNoRootNF, Detail: fmt.Errorf("more than one root NF")}
			}
			rootID, haveRoot = id, true
		}
		idx++
	}
	if !haveRoot {
		return nil, &Error{Stage: StageNoRootNF}
	}

	instanceIDs := make(map[uint32]uuid.UUID, len(loaded))
	linkStates := make(map[uuid.UUID]chain.XdpLinkState, len(links))
	rawMapsOut := make(map[uuid.UUID][]*ebpf.Map, len(loaded))

	// Phase 2: patch every side table now that every program fd is
	// known. An unloaded (disable_xdp) NF still contributes its link
	// state, which the user-space executor indexes when the chain runs
	// through it, but it has no side tables to patch and no kernel map
	// handles to hand out.
	for id, xl := range links {
		linkStates[id] = xl.State

		ln, ok := loaded[id]
		if !ok {
			continue
		}
		instanceIDs[denseIndex[id]] = id
		rawMapsOut[id] = ln.rawMaps

		if xl.State.Tail {
			continue
		}

		state := dataplaneState{ProgID: denseIndex[id], NumCores: numCores}
		stateMap, ok := ln.collection.Maps[mapMyState]
		if !ok {
			return nil, &Error{Stage: StageMissingRequiredMap, NF: id, Detail: fmt.Errorf("%s", mapMyState)}
		}
		if err := stateMap.Put(uint32(0), state); err != nil {
			return nil, &Error{Stage: StageMapUpdateFailure, NF: id, Detail: fmt.Errorf("%s: %w", mapMyState, err)}
		}

		xskMap, ok := ln.collection.Maps[mapXsk]
		if !ok {
			return nil, &Error{Stage: StageMissingRequiredMap, NF: id, Detail: fmt.Errorf("%s", mapXsk)}
		}
		for coreI, fd := range xskFDs {
			if err := xskMap.Put(uint32(coreI), uint32(fd)); err != nil {
				return nil, &Error{Stage: StageMapUpdateFailure, NF: id, Detail: fmt.Errorf("%s[%d]: %w", mapXsk, coreI, err)}
			}
		}

		actsMap, ok := ln.collection.Maps[mapActs]
		if !ok {
			return nil, &Error{Stage: StageMissingRequiredMap, NF: id, Detail: fmt.Errorf("%s", mapActs)}
		}
		var progsMap *ebpf.Map
		for i, action := range xl.State.Actions {
			if err := actsMap.Put(uint32(i), uint8(action.Kind)); err != nil {
				return nil, &Error{Stage: StageMapUpdateFailure, NF: id, Detail: fmt.Errorf("%s[%d]: %w", mapActs, i, err)}
			}
			if action.Kind != chain.ActionTailcall {
				continue
			}
			target, ok := loaded[action.Next]
			if !ok {
				return nil, &Error{Stage: StageBadLinkTarget, NF: id, Detail: fmt.Errorf("tailcall target %s not loaded", action.Next)}
			}
			if progsMap == nil {
				progsMap, ok = ln.collection.Maps[mapProgs]
				if !ok {
					return nil, &Error{Stage: StageMissingRequiredMap, NF: id, Detail: fmt.Errorf("%s", mapProgs)}
				}
			}
			if err := progsMap.Put(uint32(i), uint32(target.prog.FD())); err != nil {
				return nil, &Error{Stage: StageMapUpdateFailure, NF: id, Detail: fmt.Errorf("%s[%d]: %w", mapProgs, i, err)}
			}
		}
	}

	rootProg := loaded[rootID].prog
	xdpLink, err := xdplink.AttachXDP(xdplink.XDPOptions{
		Program:   rootProg,
		Interface: iface.Attrs().Index,
	})
	if err != nil {
		return nil, &Error{Stage: StageInterfaceLookup, NF: rootID, Detail: fmt.Errorf("attach xdp: %w", err)}
	}

	return &ChainState{
		InstanceIDs: instanceIDs,
		LinkStates:  linkStates,
		RawMaps:     rawMapsOut,
		RootLink:    xdpLink,
	}, nil
}

// toMapSymbol mirrors the codegen stage's uppercasing of declared map
// names into in-kernel symbol identifiers.
func toMapSymbol(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
