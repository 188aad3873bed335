package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// Error is a structured codegen failure.
type Error struct {
	Stage string
	NF     string
	Given, Needed int
}

func (e *Error) Error() string {
	if e.Stage == "branch-count-mismatch" {
		return fmt.Sprintf("%s: nf %q: given %d, needed %d", e.Stage, e.NF, e.Given, e.Needed)
	}
	return fmt.Sprintf("%s: nf %q", e.Stage, e.NF)
}

// wrapperParams is the common substitution set for the two in-kernel
// wrapper templates: NF name, an optional slice-size hint, the emitted
// map-definition block, a map-struct initializer snippet, and a token
// appended to the NF's call site when it declares a map parameter.
type wrapperParams struct {
	NFName          string
	SliceSize       *int
	MapDefs         string
	MapStructInit   string
	MapParamToken   string
	BranchTableSize int
}

// GenerateLinkWrapper renders the in-kernel "link" wrapper for
// an NF with explicit branches. given is the number of link targets
// declared for this NF in chain.toml; needed is the NF's analyzed
// return arity — they must agree before the branch table is sized.
func GenerateLinkWrapper(nfName string, given, needed int, maps map[string]chain.LocalMap, hasMapParam bool, slice *int) (string, error) {
	if given != needed {
		return "", &Error{Stage: "branch-count-mismatch", NF: nfName, Given: given, Needed: needed}
	}

	p := wrapperParams{
		NFName:          nfName,
		SliceSize:       slice,
		MapDefs:         renderMapDefs(maps),
		MapStructInit:   "",
		MapParamToken:   mapParamToken(hasMapParam),
		BranchTableSize: chain.NextPowerOfTwo(needed),
	}

	var buf bytes.Buffer
	if err := linkWrapperTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render link wrapper for %q: %w", nfName, err)
	}
	return buf.String(), nil
}

// GenerateTailWrapper renders the in-kernel "tail" wrapper for
// an NF whose only outgoing link is tx.
func GenerateTailWrapper(nfName string, maps map[string]chain.LocalMap, hasMapParam bool, slice *int) (string, error) {
	p := wrapperParams{
		NFName:        nfName,
		SliceSize:     slice,
		MapDefs:       renderMapDefs(maps),
		MapStructInit: "",
		MapParamToken: mapParamToken(hasMapParam),
	}

	var buf bytes.Buffer
	if err := tailWrapperTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render tail wrapper for %q: %w", nfName, err)
	}
	return buf.String(), nil
}

func mapParamToken(hasMapParam bool) string {
	if hasMapParam {
		return ", &maps"
	}
	return ""
}

// renderMapDefs emits one in-kernel map definition per declared local
// map, keyed by its uppercased name.
func renderMapDefs(maps map[string]chain.LocalMap) string {
	if len(maps) == 0 {
		return ""
	}
	names := make([]string, 0, len(maps))
	for n := range maps {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		lm := maps[name]
		m := lm.Owned
		if m == nil {
			// Shared(name) resolves against the chain-level namespace;
			// the caller (the chain-level codegen driver) is expected
			// to have already substituted the resolved Map before
			// calling renderMapDefs for an owned definition. A bare
			// reference here still gets a placeholder comment so the
			// emitted source stays inspectable.
			fmt.Fprintf(&b, "// %s: shared(%s)\n", strings.ToUpper(name), lm.Shared)
			continue
		}
		bpfType := "BPF_MAP_TYPE_ARRAY"
		if m.Type == chain.MapTypeHashMap {
			bpfType = "BPF_MAP_TYPE_HASH"
		}
		fmt.Fprintf(&b, "struct {\n\t__uint(type, %s);\n\t__uint(max_entries, %d);\n} %s SEC(\".maps\");\n\n",
			bpfType, m.Size, strings.ToUpper(name))
	}
	return b.String()
}

// userspaceParams substitutes the user-space wrapper template.
type userspaceParams struct {
	NFName        string
	ImportPath    string
	MapStructName string
	MapParamToken string
	MapFields     []chain.MapField
}

// GenerateUserspaceWrapper renders the Go source of the C-ABI-equivalent
// wrapper a user-space NF build compiles to a dylib: it rebinds the
// positional raw-map vector into the NF's declared map struct and
// forwards to its Packet entry point. mapFields carries each field's
// actual generic key/value types (from the analyzer's struct
// introspection), so the rebind instantiates nf.NewRawMap[K, V] against
// the NF's real map types instead of a fixed placeholder.
func GenerateUserspaceWrapper(nfName, importPath, mapStructName string, mapFields []chain.MapField) (string, error) {
	p := userspaceParams{
		NFName:        nfName,
		ImportPath:    importPath,
		MapStructName: mapStructName,
		MapParamToken: mapParamToken(mapStructName != ""),
		MapFields:     mapFields,
	}

	var buf bytes.Buffer
	if err := userspaceWrapperTmpl.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render userspace wrapper for %q: %w", nfName, err)
	}
	return buf.String(), nil
}
