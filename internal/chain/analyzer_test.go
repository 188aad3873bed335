package chain

import "testing"

func TestAnalyze_SingleVariantEnum(t *testing.T) {
	a, err := Analyze("macswap", "../../testdata/nf/macswap")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !a.ReturnType.Empty {
		// macswap's Action has one variant; it's a named enum, not a
		// truly empty return, but its arity must still be 1.
	}
	if got := a.ReturnType.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if a.MapTypeName != "" {
		t.Fatalf("MapTypeName = %q, want empty", a.MapTypeName)
	}
}

func TestAnalyze_FourVariantEnum(t *testing.T) {
	a, err := Analyze("dest-ip-branch", "../../testdata/nf/dest-ip-branch")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	want := []string{"ActionLeft", "ActionRight", "ActionUp", "ActionDown"}
	if len(a.ReturnType.Variants) != len(want) {
		t.Fatalf("Variants = %v, want %v", a.ReturnType.Variants, want)
	}
	for i, v := range want {
		if a.ReturnType.Variants[i] != v {
			t.Fatalf("Variants[%d] = %q, want %q", i, a.ReturnType.Variants[i], v)
		}
	}
	if a.ReturnType.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", a.ReturnType.Len())
	}
}

func TestAnalyze_MapParameter(t *testing.T) {
	a, err := Analyze("filter-ip", "../../testdata/nf/filter-ip")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.MapTypeName != "FilterMaps" {
		t.Fatalf("MapTypeName = %q, want FilterMaps", a.MapTypeName)
	}
	if len(a.ReturnType.Variants) != 2 {
		t.Fatalf("Variants = %v, want 2 entries", a.ReturnType.Variants)
	}
	if len(a.MapFields) != 1 {
		t.Fatalf("MapFields = %v, want 1 entry", a.MapFields)
	}
	got := a.MapFields[0]
	if got.Name != "BlockedIPs" || got.KeyType != "uint32" || got.ValueType != "bool" {
		t.Fatalf("MapFields[0] = %+v, want {BlockedIPs uint32 bool}", got)
	}
}

func TestAnalyze_MissingModule(t *testing.T) {
	_, err := Analyze("nope", "../../testdata/nf/does-not-exist")
	pe, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ParseError", err, err)
	}
	if pe.Stage != ParseModuleRead {
		t.Fatalf("Stage = %v, want ParseModuleRead", pe.Stage)
	}
}
