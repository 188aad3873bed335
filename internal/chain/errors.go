package chain

import "fmt"

// ParseStage is the error kind for NF source-analysis failures.
type ParseStage int

const (
	ParseModuleRead ParseStage = iota
	ParseModuleParse
	ParseMissingEntry
	ParseMissingReturnEnum
	ParseUnresolvableReturnType
)

func (s ParseStage) String() string {
	switch s {
	case ParseModuleRead:
		return "module-read"
	case ParseModuleParse:
		return "module-parse"
	case ParseMissingEntry:
		return "missing-entry"
	case ParseMissingReturnEnum:
		return "missing-return-enum-definition"
	case ParseUnresolvableReturnType:
		return "unresolvable-return-type"
	default:
		return "unknown-parse-stage"
	}
}

// ParseError is a structured source-analysis failure.
type ParseError struct {
	Stage  ParseStage
	NF     string
	Enum   string // populated for ParseMissingReturnEnum
	Detail error
}

func (e *ParseError) Error() string {
	switch e.Stage {
	case ParseMissingReturnEnum:
		return fmt.Sprintf("%s: nf %q: enum %q not defined in module root", e.Stage, e.NF, e.Enum)
	default:
		if e.Detail != nil {
			return fmt.Sprintf("%s: nf %q: %v", e.Stage, e.NF, e.Detail)
		}
		return fmt.Sprintf("%s: nf %q", e.Stage, e.NF)
	}
}

func (e *ParseError) Unwrap() error { return e.Detail }

// BuildStage is the error kind for chain-build failures.
type BuildStage int

const (
	BuildNoRoot BuildStage = iota
	BuildMultipleRoots
	BuildUndefinedSource
	BuildUndefinedTarget
	BuildBranchMismatch
	BuildMapArityMismatch
	BuildSharedMapUndefined
	BuildTailcallToDisabled
)

func (s BuildStage) String() string {
	switch s {
	case BuildNoRoot:
		return "no-root"
	case BuildMultipleRoots:
		return "multiple-roots"
	case BuildUndefinedSource:
		return "undefined-source"
	case BuildUndefinedTarget:
		return "undefined-target"
	case BuildBranchMismatch:
		return "branch-count-mismatch"
	case BuildMapArityMismatch:
		return "map-arity-mismatch"
	case BuildSharedMapUndefined:
		return "shared-map-undefined"
	case BuildTailcallToDisabled:
		return "tailcall-to-disabled-nf"
	default:
		return "unknown-build-stage"
	}
}

// BuildError is a structured chain-build failure.
type BuildError struct {
	Stage BuildStage
	NF    string
	Link  *Link

	// Given/Needed populate BuildBranchMismatch:
	// "branch-count-mismatch{given:2, needed:3}".
	Given, Needed int
}

func (e *BuildError) Error() string {
	switch e.Stage {
	case BuildBranchMismatch:
		return fmt.Sprintf("%s: nf %q: given %d, needed %d", e.Stage, e.NF, e.Given, e.Needed)
	case BuildUndefinedSource, BuildUndefinedTarget:
		return fmt.Sprintf("%s: link %+v: nf %q", e.Stage, e.Link, e.NF)
	case BuildNoRoot, BuildMultipleRoots:
		return e.Stage.String()
	default:
		return fmt.Sprintf("%s: nf %q", e.Stage, e.NF)
	}
}
