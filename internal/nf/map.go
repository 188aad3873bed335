package nf

import "github.com/cilium/ebpf"

// Map is the key/value abstraction NF modules declare as parameters.
// Get returns the zero value and false on a miss; Put is a best-effort
// upsert.
type Map[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
}

// PlainMap is an in-process value-copy map, used by user-space NFs
// exercised outside the dataplane (unit tests) that were never bound to
// a live kernel map fd.
type PlainMap[K comparable, V any] struct {
	data map[K]V
}

func NewPlainMap[K comparable, V any]() *PlainMap[K, V] {
	return &PlainMap[K, V]{data: make(map[K]V)}
}

func (m *PlainMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.data[key]
	return v, ok
}

func (m *PlainMap[K, V]) Put(key K, value V) {
	m.data[key] = value
}

// RawMap forwards to a live kernel BPF map via github.com/cilium/ebpf.
// It is what the dynamic-library NF build actually
// receives at runtime: a contiguous vector of these, rebound into the
// NF's named map struct by position, one RawMap per map the
// NF declared in declaration order.
type RawMap[K comparable, V any] struct {
	m *ebpf.Map
}

// NewRawMap wraps an already-opened, already-pinned-by-the-installer
// kernel map. The generated user-space wrapper constructs these from
// the map handles it is passed; everything else treats RawMap as an
// opaque handle.
func NewRawMap[K comparable, V any](m *ebpf.Map) *RawMap[K, V] {
	return &RawMap[K, V]{m: m}
}

func (m *RawMap[K, V]) Get(key K) (V, bool) {
	var value V
	if m.m == nil {
		return value, false
	}
	if err := m.m.Lookup(&key, &value); err != nil {
		return value, false
	}
	return value, true
}

func (m *RawMap[K, V]) Put(key K, value V) {
	if m.m == nil {
		return
	}
	_ = m.m.Put(&key, &value)
}

// UserNFFunc is the fixed C-ABI-equivalent contract a compiled
// user-space NF dylib exposes:
// the generated wrapper rebinds the positional map vector into
// the NF's typed Maps struct, calls the NF's Packet function, and
// returns its return value's declaration-order variant index. Every
// dylib built by the codegen+compile stages exports exactly one package
// level symbol, "UserNFProgram", of this type.
type UserNFFunc func(pkt []byte, maps []*ebpf.Map) int

// UserNFSymbol is the exported symbol name plugin.Lookup resolves
// against every loaded NF dylib.
const UserNFSymbol = "UserNFProgram"
