// Package chain holds the declarative chain data model, its TOML decoding, the NF
// source analyzer, and the chain builder that turns a declarative chain
// plus analyzer output into the typed link graph the installer consumes.
package chain

import "github.com/google/uuid"

// Chain is an ordered collection of named Functions and an ordered list
// of Links, plus a shared map namespace. Immutable once parsed.
type Chain struct {
	Functions map[string]Function `toml:"functions"`
	Links     []Link              `toml:"links"`
	Maps      map[string]Map      `toml:"maps"`
}

// Function describes one NF entry in the chain description.
type Function struct {
	// Path overrides the default module-root lookup (the function's own
	// name under the chain's functions directory).
	Path *string `toml:"path"`

	// DisableXDP forces every inbound link action targeting this NF to
	// be promoted to Upcall, even if its analysis says it is in-kernel
	// capable.
	DisableXDP bool `toml:"disable_xdp"`

	// Slice is an optional hint to the codegen stage about how many
	// bytes of the packet the NF actually touches.
	Slice *int `toml:"slice"`

	Maps map[string]LocalMap `toml:"maps"`
}

// LocalMap is either an Owned map definition or a Shared reference by
// name into the chain-level map namespace. Exactly one of the two is
// populated; see UnmarshalTOML for the untagged-union decode.
type LocalMap struct {
	Owned  *Map
	Shared string
}

// Map is a chain-level map definition: a type tag and a capacity.
type Map struct {
	Type MapType `toml:"type"`
	Size uint64  `toml:"size"`
}

// MapType is the kind of backing map an NF's map parameter binds to.
type MapType string

const (
	MapTypeArray   MapType = "array"
	MapTypeHashMap MapType = "hash_map"
)

// Link is a directed edge with one source name and an ordered list of
// destination names. Sentinel names rx/tx/drop/pass/abort carry special
// meaning; a leading '!' on a destination forces an upcall.
type Link struct {
	From string   `toml:"from"`
	To   []string `toml:"to"`
}

const (
	SentinelRx    = "rx"
	SentinelTx    = "tx"
	SentinelDrop  = "drop"
	SentinelPass  = "pass"
	SentinelAbort = "abort"
)

// NfReturnType is either Empty (arity 1) or an Enum with variants in
// declaration order. The branch-table size is NextPowerOfTwo(len(variants)).
type NfReturnType struct {
	Empty    bool
	EnumName string
	Variants []string
}

// Len returns the NF's return arity: 1 for Empty, len(Variants) for Enum.
func (t NfReturnType) Len() int {
	if t.Empty {
		return 1
	}
	return len(t.Variants)
}

// FnAnalysis is the output of the source analyzer for one NF.
type FnAnalysis struct {
	ReturnType NfReturnType
	MapTypeName string // named type of the NF's second ("maps") parameter, if any
	MapFields   []MapField // fields of MapTypeName's struct that are nf.Map[K, V]-typed, in declaration order
}

// MapField is one nf.Map[K, V]-typed field of an NF's declared map
// struct: its Go field name and its generic key/value type arguments as
// written in source (e.g. "uint32", "bool").
type MapField struct {
	Name      string
	KeyType   string
	ValueType string
}

// InstalledFunction is a persistent, opaque-id'd NF artifact: an
// optional in-kernel payload (link-form + tail-form objects), an
// optional user-space dynamic-library payload, and the ordered map
// names the function declared.
type InstalledFunction struct {
	ID uuid.UUID

	EBPF *EBPFPayload
	Elf  []byte // user-space dylib bytes, if any

	MapNames []string
}

// EBPFPayload is the pair of compiled in-kernel objects for one NF: the
// "link" wrapper (used when the NF has explicit branches) and the
// "tail" wrapper (used when the NF's only outgoing link is tx).
type EBPFPayload struct {
	LinkForm []byte
	TailForm []byte
}

// XdpLink is the installer/dataplane's typed view of one NF: its state
// (Tail or Body(actions)), whether it is a root (reached directly from
// rx), whether in-kernel execution is disabled for it, and the ordered
// map names it declared.
type XdpLink struct {
	ID         uuid.UUID
	State      XdpLinkState
	Root       bool
	DisableXDP bool
	MapNames   []string
}

// XdpLinkState is either Tail (terminal, transmit-only) or Body(actions),
// where actions[i] is the decision taken when the NF returns index i.
type XdpLinkState struct {
	Tail    bool
	Actions []LinkAction
}

// Act resolves the LinkAction for a given return index: a Tail state
// always transmits; a Body state indexes its action table.
func (s XdpLinkState) Act(index uint32) LinkAction {
	if s.Tail {
		return LinkAction{Kind: ActionTx}
	}
	if int(index) >= len(s.Actions) {
		// Open question: an unpopulated slot defaults to Tx; every
		// slot in the power-of-two table must be explicitly initialized
		// by the builder, so this path is defensive only.
		return LinkAction{Kind: ActionTx}
	}
	return s.Actions[index]
}

// ActionKind is the dense integer kind stored in acts_map, in {0..5}.
type ActionKind uint8

const (
	ActionTx ActionKind = iota
	ActionDrop
	ActionAbort
	ActionUpcall
	ActionTailcall
	ActionPass
)

// LinkAction is the decision taken when an NF returns a given variant
// index: transmit, drop, abort, pass, or forward to another NF either
// by upcall (cross to user-space) or tailcall (stay in-kernel).
type LinkAction struct {
	Kind ActionKind
	Next uuid.UUID // populated only for Upcall/Tailcall
}

// NextNF returns the target NF id for Upcall/Tailcall actions, and false
// for terminal actions (Tx/Drop/Abort/Pass).
func (a LinkAction) NextNF() (uuid.UUID, bool) {
	if a.Kind == ActionUpcall || a.Kind == ActionTailcall {
		return a.Next, true
	}
	return uuid.UUID{}, false
}

// NextPowerOfTwo returns the smallest power of two >= n, with
// NextPowerOfTwo(0) == 1 matching the "arity 1" treatment of Empty
// return types.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
