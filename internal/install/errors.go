// Package install is the Dataplane Installer: it loads each NF's
// in-kernel object, resolves program file descriptors, patches the four
// well-known side tables, and attaches the root program to an
// interface.
package install

import (
	"fmt"

	"github.com/google/uuid"
)

// Stage is the error kind for installer failures.
type Stage int

const (
	StageInterfaceLookup Stage = iota
	StageMissingNFPayload
	StageMissingEntrySymbol
	StageMissingRequiredMap
	StageBadLinkTarget
	StageMapUpdateFailure
	StageNoRootNF
	StageLoadObject
)

func (s Stage) String() string {
	switch s {
	case StageInterfaceLookup:
		return "interface-lookup"
	case StageMissingNFPayload:
		return "missing-nf-payload"
	case StageMissingEntrySymbol:
		return "missing-entry-symbol"
	case StageMissingRequiredMap:
		return "missing-required-map"
	case StageBadLinkTarget:
		return "bad-link-target"
	case StageMapUpdateFailure:
		return "map-update-failure"
	case StageNoRootNF:
		return "no-root-nf"
	case StageLoadObject:
		return "load-object"
	default:
		return "unknown-install-stage"
	}
}

// Error is a structured installer failure.
type Error struct {
	Stage  Stage
	NF     uuid.UUID
	Detail error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: nf %s: %v", e.Stage, e.NF, e.Detail)
	}
	return fmt.Sprintf("%s: nf %s", e.Stage, e.NF)
}

func (e *Error) Unwrap() error { return e.Detail }
