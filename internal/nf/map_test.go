package nf

import "testing"

func TestPlainMap_GetPut(t *testing.T) {
	m := NewPlainMap[uint32, bool]()

	if _, ok := m.Get(192); ok {
		t.Fatalf("Get on empty map returned ok=true")
	}

	m.Put(192, true)
	v, ok := m.Get(192)
	if !ok || !v {
		t.Fatalf("Get(192) = (%v, %v), want (true, true)", v, ok)
	}

	m.Put(192, false)
	v, ok = m.Get(192)
	if !ok || v {
		t.Fatalf("Get(192) after overwrite = (%v, %v), want (false, true)", v, ok)
	}
}

func TestRawMap_NilCollectionIsSafeMiss(t *testing.T) {
	// A RawMap with no live kernel handle (e.g. constructed in a unit
	// test outside the installer) must behave as a clean miss rather
	// than dereferencing a nil *ebpf.Map.
	m := NewRawMap[uint32, bool](nil)

	if _, ok := m.Get(1); ok {
		t.Fatalf("Get on nil-backed RawMap returned ok=true")
	}
	m.Put(1, true) // must not panic
}
