package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// fakeToolchain stands in for the external compiler: it never shells
// out, just returns a deterministic marker so tests can assert the
// pipeline reached compilation without depending on clang/go being
// installed in the test environment.
type fakeToolchain struct {
	calls []string
}

func (f *fakeToolchain) CompileXDP(_ context.Context, _ Target, nfName, linkSrcPath, tailSrcPath, _ string) ([]byte, []byte, error) {
	f.calls = append(f.calls, "xdp:"+nfName)
	if _, err := os.Stat(linkSrcPath); err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(tailSrcPath); err != nil {
		return nil, nil, err
	}
	return []byte("link-obj:" + nfName), []byte("tail-obj:" + nfName), nil
}

func (f *fakeToolchain) CompileUserspace(_ context.Context, _ Target, nfName, srcPath, _ string) ([]byte, error) {
	f.calls = append(f.calls, "user:"+nfName)
	if _, err := os.Stat(srcPath); err != nil {
		return nil, err
	}
	return []byte("so:" + nfName), nil
}

func writeChainTOML(t *testing.T, dir string) string {
	t.Helper()
	contents := `
[functions."decrement-ip-ttl"]

[functions."filter-ip"]
[functions."filter-ip".maps.blocked_ips]
type = "hash_map"
size = 1024

[functions."dest-ip-branch"]

[[links]]
from = "rx"
to = ["decrement-ip-ttl"]

[[links]]
from = "decrement-ip-ttl"
to = ["filter-ip"]

[[links]]
from = "filter-ip"
to = ["drop", "dest-ip-branch"]

[[links]]
from = "dest-ip-branch"
to = ["tx", "tx", "drop", "drop"]
`
	path := filepath.Join(dir, "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func testdataNFDir(t *testing.T) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join("..", "..", "testdata", "nf"))
	require.NoError(t, err)
	return abs
}

func TestCompileProducesBundleForEveryFunction(t *testing.T) {
	dir := t.TempDir()
	chainPath := writeChainTOML(t, dir)
	tc := &fakeToolchain{}

	bundle, err := Compile(context.Background(), Options{
		ChainPath:   chainPath,
		FunctionDir: testdataNFDir(t),
		OutDir:      filepath.Join(dir, "out"),
		ImportBase:  "github.com/nfgraph/nfgraph/testdata/nf",
		Target:      Target{Triple: "x86_64-unknown-linux-gnu"},
		Toolchain:   tc,
	})
	require.NoError(t, err)
	require.Len(t, bundle.NFs, 3)
	require.Len(t, bundle.Links, 3)

	var rootCount int
	for _, l := range bundle.Links {
		if l.Root {
			rootCount++
		}
	}
	require.Equal(t, 1, rootCount)

	// decrement-ip-ttl has a single outgoing link to another NF (not a
	// bare "tx"), so it's a Body state with a one-slot branch table, not
	// a Tail state.
	var foundTailcall, foundUpcall bool
	for _, f := range bundle.NFs {
		require.NotNil(t, f.EBPF, "every NF in this fixture compiles to an in-kernel form")
	}
	for _, l := range bundle.Links {
		if l.State.Tail {
			continue
		}
		for _, a := range l.State.Actions {
			if a.Kind == chain.ActionTailcall {
				foundTailcall = true
			}
			if a.Kind == chain.ActionUpcall {
				foundUpcall = true
			}
		}
	}
	require.True(t, foundTailcall, "decrement-ip-ttl -> filter-ip and filter-ip -> dest-ip-branch must tailcall")
	require.False(t, foundUpcall, "no function in this fixture sets disable_xdp")

	require.Contains(t, tc.calls, "user:filter-ip")
}

// A disable_xdp NF never gets an in-kernel payload, even when its only
// outgoing link is tx (Tail state); it ships as a user-space dylib
// only.
func TestCompileDisableXDPSkipsInKernelForm(t *testing.T) {
	dir := t.TempDir()
	contents := `
[functions."macswap"]
disable_xdp = true

[[links]]
from = "rx"
to = ["macswap"]

[[links]]
from = "macswap"
to = ["tx"]
`
	path := filepath.Join(dir, "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	tc := &fakeToolchain{}

	bundle, err := Compile(context.Background(), Options{
		ChainPath:   path,
		FunctionDir: testdataNFDir(t),
		OutDir:      filepath.Join(dir, "out"),
		ImportBase:  "github.com/nfgraph/nfgraph/testdata/nf",
		Target:      Target{Triple: "x86_64-unknown-linux-gnu"},
		Toolchain:   tc,
	})
	require.NoError(t, err)
	require.Len(t, bundle.NFs, 1)

	for _, f := range bundle.NFs {
		require.Nil(t, f.EBPF, "disable_xdp NF must not carry an in-kernel payload")
		require.NotNil(t, f.Elf, "disable_xdp NF still needs its user-space dylib")
	}
	require.NotContains(t, tc.calls, "xdp:macswap")
	require.Contains(t, tc.calls, "user:macswap")
}

func TestCompileRejectsBranchMismatch(t *testing.T) {
	dir := t.TempDir()
	contents := `
[functions."dest-ip-branch"]

[[links]]
from = "rx"
to = ["dest-ip-branch"]

[[links]]
from = "dest-ip-branch"
to = ["tx", "tx"]
`
	path := filepath.Join(dir, "chain.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Compile(context.Background(), Options{
		ChainPath:   path,
		FunctionDir: testdataNFDir(t),
		OutDir:      filepath.Join(dir, "out"),
		ImportBase:  "github.com/nfgraph/nfgraph/testdata/nf",
		Target:      Target{Triple: "x86_64-unknown-linux-gnu"},
		Toolchain:   &fakeToolchain{},
	})
	require.Error(t, err)

	var buildErr *chain.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, chain.BuildBranchMismatch, buildErr.Stage)
}

func TestTargetRegistryRejectsUnknownTriple(t *testing.T) {
	reg := NewTargetRegistry(nil)
	require.Contains(t, reg.Triples(), "x86_64-unknown-linux-gnu")

	_, err := reg.Lookup("riscv64-unknown-linux-gnu")
	require.Error(t, err)
	var compErr *Error
	require.ErrorAs(t, err, &compErr)
	require.Equal(t, StageUnknownTarget, compErr.Stage)
}

func TestExecToolchainReportsNonzeroExit(t *testing.T) {
	tc := &ExecToolchain{XDPCompileCmd: []string{"sh", "-c", "exit 1"}}
	_, _, err := tc.CompileXDP(context.Background(), Target{}, "nf", "a.c", "b.c", t.TempDir())
	require.Error(t, err)
	var compErr *Error
	require.ErrorAs(t, err, &compErr)
	require.Equal(t, StageToolchainNonzeroExit, compErr.Stage)
	require.NotEmpty(t, fmt.Sprint(compErr))
}
