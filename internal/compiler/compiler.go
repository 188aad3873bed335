package compiler

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/artifact"
	"github.com/nfgraph/nfgraph/internal/cache"
	"github.com/nfgraph/nfgraph/internal/chain"
	"github.com/nfgraph/nfgraph/internal/codegen"
)

// Options configures one Compile run.
type Options struct {
	ChainPath   string // path to chain.toml
	FunctionDir string // root under which each NF's module lives, by name, unless Function.Path overrides it
	OutDir      string // scratch directory for rendered sources and compiled objects
	ImportBase  string // Go import path prefix the rendered userspace wrapper imports NF packages under
	Target      Target
	Toolchain   Toolchain
	Cache       *cache.Cache // optional; nil disables caching
}

// Compile runs the full pipeline: parse the chain description, analyze
// every NF's source, build the typed link graph, render and compile
// each NF's wrapper sources, and assemble the resulting artifact
// bundle.
func Compile(ctx context.Context, opts Options) (*artifact.Bundle, error) {
	c, err := chain.LoadFile(opts.ChainPath)
	if err != nil {
		return nil, err
	}

	names := sortedFunctionNames(c.Functions)

	analyses := make(map[string]chain.FnAnalysis, len(names))
	srcDirs := make(map[string]string, len(names))
	for _, name := range names {
		dir := functionDir(opts.FunctionDir, name, c.Functions[name])
		srcDirs[name] = dir
		analysis, err := chain.Analyze(name, dir)
		if err != nil {
			return nil, err
		}
		analyses[name] = analysis
	}

	ids := make(map[string]uuid.UUID, len(names))
	for _, name := range names {
		ids[name] = uuid.New()
	}

	links, err := chain.Build(c, analyses, ids)
	if err != nil {
		return nil, err
	}

	givenCounts := outgoingBranchCounts(c)

	nfs := make(map[string]chain.InstalledFunction, len(names))
	for _, name := range names {
		id := ids[name]
		link := links[id]
		fn := c.Functions[name]
		analysis := analyses[name]

		installed, err := compileOne(ctx, opts, name, id, fn, link, analysis, srcDirs[name], givenCounts[name])
		if err != nil {
			return nil, err
		}
		nfs[id.String()] = *installed
	}

	ordered := make([]chain.XdpLink, 0, len(links))
	for _, id := range orderedIDs(ids, names) {
		ordered = append(ordered, *links[id])
	}

	return &artifact.Bundle{Links: ordered, NFs: nfs}, nil
}

// compileOne renders, caches, and compiles the wrapper sources for a
// single NF, returning its InstalledFunction.
func compileOne(ctx context.Context, opts Options, name string, id uuid.UUID, fn chain.Function, link *chain.XdpLink, analysis chain.FnAnalysis, srcDir string, given int) (*chain.InstalledFunction, error) {
	sources, err := readSourceTree(srcDir)
	if err != nil {
		return nil, &Error{Stage: StageReadSource, NF: name, Path: srcDir, Detail: err}
	}

	hasMapParam := analysis.MapTypeName != ""
	mapSig := mapSignature(fn.Maps)
	cacheKey := ""
	if opts.Cache != nil {
		cacheKey = "xdp:" + opts.Target.Triple + ":" + cache.HashInputs(sources, mapSig)
		if cached, ok, err := opts.Cache.Get(ctx, cacheKey); err == nil && ok {
			return decodeCachedFunction(id, link, fn, cached)
		}
	}

	nfOutDir := filepath.Join(opts.OutDir, name)
	if err := os.MkdirAll(nfOutDir, 0o755); err != nil {
		return nil, &Error{Stage: StageCreateDir, NF: name, Path: nfOutDir, Detail: err}
	}

	var linkObj, tailObj, so []byte

	// A disable_xdp NF never gets an in-kernel payload, Tail state or
	// not; it runs purely in user-space.
	switch {
	case link.DisableXDP:

	case link.State.Tail:
		tailSrc, err := codegen.GenerateTailWrapper(name, fn.Maps, hasMapParam, fn.Slice)
		if err != nil {
			return nil, wrapStageError(name, err)
		}
		tailPath, err := writeSource(nfOutDir, name+"_tail.c", tailSrc)
		if err != nil {
			return nil, err
		}
		linkObj, tailObj, err = opts.Toolchain.CompileXDP(ctx, opts.Target, name, tailPath, tailPath, nfOutDir)
		if err != nil {
			return nil, err
		}

	default:
		needed := analysis.ReturnType.Len()
		linkSrc, err := codegen.GenerateLinkWrapper(name, given, needed, fn.Maps, hasMapParam, fn.Slice)
		if err != nil {
			return nil, wrapStageError(name, err)
		}
		tailSrc, err := codegen.GenerateTailWrapper(name, fn.Maps, hasMapParam, fn.Slice)
		if err != nil {
			return nil, wrapStageError(name, err)
		}
		linkPath, err := writeSource(nfOutDir, name+".c", linkSrc)
		if err != nil {
			return nil, err
		}
		tailPath, err := writeSource(nfOutDir, name+"-chain.c", tailSrc)
		if err != nil {
			return nil, err
		}
		linkObj, tailObj, err = opts.Toolchain.CompileXDP(ctx, opts.Target, name, linkPath, tailPath, nfOutDir)
		if err != nil {
			return nil, err
		}
	}

	// Every NF gets a user-space form, not just disable_xdp ones: a '!'
	// destination forces an upcall into an otherwise in-kernel-capable
	// NF, so the dylib must exist for any NF a link can name.
	mapStruct := ""
	if hasMapParam {
		mapStruct = analysis.MapTypeName
	}
	importPath := filepath.ToSlash(filepath.Join(opts.ImportBase, name))
	userSrc, err := codegen.GenerateUserspaceWrapper(name, importPath, mapStruct, analysis.MapFields)
	if err != nil {
		return nil, wrapStageError(name, err)
	}
	userPath, err := writeSource(nfOutDir, name+"_user.go", userSrc)
	if err != nil {
		return nil, err
	}
	so, err = opts.Toolchain.CompileUserspace(ctx, opts.Target, name, userPath, nfOutDir)
	if err != nil {
		return nil, err
	}

	installed := &chain.InstalledFunction{
		ID:       id,
		MapNames: sortedMapNames(fn.Maps),
	}
	if linkObj != nil || tailObj != nil {
		installed.EBPF = &chain.EBPFPayload{LinkForm: linkObj, TailForm: tailObj}
	}
	installed.Elf = so

	if opts.Cache != nil && cacheKey != "" {
		if encoded, err := encodeCachedFunction(installed); err == nil {
			_ = opts.Cache.Put(ctx, cacheKey, encoded)
		}
	}

	return installed, nil
}

func writeSource(dir, name, contents string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return "", &Error{Stage: StageWriteFile, Path: path, Detail: err}
	}
	return path, nil
}

func readSourceTree(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = data
	}
	return out, nil
}

func functionDir(root, name string, fn chain.Function) string {
	if fn.Path != nil {
		return *fn.Path
	}
	return filepath.Join(root, name)
}

func sortedFunctionNames(fns map[string]chain.Function) []string {
	names := make([]string, 0, len(fns))
	for n := range fns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedMapNames(maps map[string]chain.LocalMap) []string {
	names := make([]string, 0, len(maps))
	for n := range maps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mapSignature(maps map[string]chain.LocalMap) string {
	names := sortedMapNames(maps)
	sig := ""
	for _, n := range names {
		lm := maps[n]
		if lm.Owned != nil {
			sig += n + "=" + string(lm.Owned.Type) + "\x00"
		} else {
			sig += n + "=shared:" + lm.Shared + "\x00"
		}
	}
	return sig
}

// outgoingBranchCounts returns, per NF name, the number of declared
// targets in its one outgoing non-rx link (0 if it has none, i.e. it
// is a chain leaf with no explicit link entry).
func outgoingBranchCounts(c *chain.Chain) map[string]int {
	out := make(map[string]int, len(c.Links))
	for i := range c.Links {
		l := &c.Links[i]
		if l.From == chain.SentinelRx {
			continue
		}
		out[l.From] = len(l.To)
	}
	return out
}

func orderedIDs(ids map[string]uuid.UUID, names []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(names))
	for _, n := range names {
		out = append(out, ids[n])
	}
	return out
}

// encodeCachedFunction/decodeCachedFunction persist just the compiled
// payload bytes of one InstalledFunction under a cache.Cache entry,
// keyed separately from artifact.Encode's whole-bundle wire format
// since a cache hit replaces only one NF's toolchain invocation, not
// the surrounding link graph (which is rebuilt fresh on every Compile
// call since it depends on the freshly minted per-run NF ids).
func encodeCachedFunction(f *chain.InstalledFunction) ([]byte, error) {
	var buf bytes.Buffer
	hasEBPF := f.EBPF != nil
	buf.WriteByte(boolByte(hasEBPF))
	if hasEBPF {
		if err := writeCachedBytes(&buf, f.EBPF.LinkForm); err != nil {
			return nil, err
		}
		if err := writeCachedBytes(&buf, f.EBPF.TailForm); err != nil {
			return nil, err
		}
	}
	hasElf := f.Elf != nil
	buf.WriteByte(boolByte(hasElf))
	if hasElf {
		if err := writeCachedBytes(&buf, f.Elf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeCachedFunction(id uuid.UUID, link *chain.XdpLink, fn chain.Function, data []byte) (*chain.InstalledFunction, error) {
	r := bytes.NewReader(data)
	out := &chain.InstalledFunction{ID: id, MapNames: sortedMapNames(fn.Maps)}

	hasEBPF, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasEBPF != 0 {
		linkForm, err := readCachedBytes(r)
		if err != nil {
			return nil, err
		}
		tailForm, err := readCachedBytes(r)
		if err != nil {
			return nil, err
		}
		out.EBPF = &chain.EBPFPayload{LinkForm: linkForm, TailForm: tailForm}
	}
	hasElf, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasElf != 0 {
		if out.Elf, err = readCachedBytes(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeCachedBytes(w *bytes.Buffer, v []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(v))); err != nil {
		return err
	}
	_, err := w.Write(v)
	return err
}

func readCachedBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
