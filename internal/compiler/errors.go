// Package compiler orchestrates the compiler pipeline end to end: parse
// chain.toml, analyze each NF's source, build the typed link graph,
// render per-NF wrapper sources, hand them to an external toolchain,
// and assemble the resulting artifact bundle.
package compiler

import (
	"fmt"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// Stage is the error kind for the write/compile steps that sit between
// codegen and the typed link graph: writing rendered sources to disk,
// and invoking the external toolchain against them.
type Stage int

const (
	StageCreateDir Stage = iota
	StageCreateFile
	StageWriteFile
	StageReadSource
	StageUnknownTarget
	StageToolchainInvoke
	StageToolchainNonzeroExit
	StageReadArtifact
)

func (s Stage) String() string {
	switch s {
	case StageCreateDir:
		return "create-dir"
	case StageCreateFile:
		return "create-file"
	case StageWriteFile:
		return "write-file"
	case StageReadSource:
		return "read-source"
	case StageUnknownTarget:
		return "unknown-target"
	case StageToolchainInvoke:
		return "toolchain-invoke"
	case StageToolchainNonzeroExit:
		return "toolchain-nonzero-exit"
	case StageReadArtifact:
		return "read-artifact"
	default:
		return "unknown-compile-stage"
	}
}

// Error is a structured compiler-pipeline failure outside the
// chain/codegen/install packages' own stages.
type Error struct {
	Stage  Stage
	NF     string // empty for chain-wide stages (e.g. StageUnknownTarget)
	Path   string
	Output string // captured stderr/stdout, populated for StageToolchainNonzeroExit
	Detail error
}

func (e *Error) Error() string {
	switch {
	case e.Stage == StageUnknownTarget:
		return fmt.Sprintf("%s: %q", e.Stage, e.Path)
	case e.Stage == StageToolchainNonzeroExit:
		return fmt.Sprintf("%s: nf %q: %s", e.Stage, e.NF, e.Output)
	case e.Path != "" && e.Detail != nil:
		return fmt.Sprintf("%s: nf %q: %s: %v", e.Stage, e.NF, e.Path, e.Detail)
	case e.Detail != nil:
		return fmt.Sprintf("%s: nf %q: %v", e.Stage, e.NF, e.Detail)
	default:
		return fmt.Sprintf("%s: nf %q", e.Stage, e.NF)
	}
}

func (e *Error) Unwrap() error { return e.Detail }

// wrapStageError prepares a chain/codegen-package error for callers:
// chain.ParseError and chain.BuildError already carry their own stage
// strings and are returned unchanged; every other error, codegen.Error
// included, is wrapped with the NF name.
func wrapStageError(nf string, err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *chain.ParseError, *chain.BuildError:
		return err
	default:
		return fmt.Errorf("nf %q: %w", nf, err)
	}
}
