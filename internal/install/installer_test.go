package install

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/chain"
)

// A disable_xdp NF legitimately ships without an in-kernel payload; the
// installer must skip loading it rather than reject the whole chain.
// This chain then has no loadable root, so the failure surfaces as
// no-root-nf, never missing-nf-payload.
func TestInstall_DisableXDPWithoutPayloadIsSkipped(t *testing.T) {
	id := uuid.New()
	links := map[uuid.UUID]*chain.XdpLink{
		id: {
			ID:         id,
			DisableXDP: true,
			State:      chain.XdpLinkState{Actions: []chain.LinkAction{{Kind: chain.ActionTx}}},
		},
	}
	nfs := map[string]chain.InstalledFunction{
		id.String(): {ID: id, Elf: []byte{0x7f}}, // user-space payload only
	}

	_, err := Install(links, nfs, "lo", 1, nil)
	ie, ok := err.(*Error)
	if !ok {
		t.Fatalf("Install = %v (%T), want *Error", err, err)
	}
	if ie.Stage == StageMissingNFPayload {
		t.Fatalf("disable_xdp NF without EBPF payload rejected as %v", ie.Stage)
	}
	if ie.Stage != StageNoRootNF {
		t.Fatalf("Stage = %v, want StageNoRootNF", ie.Stage)
	}
}

// An in-kernel-capable NF with no EBPF payload is a build defect and
// still rejected.
func TestInstall_MissingPayloadRejected(t *testing.T) {
	id := uuid.New()
	links := map[uuid.UUID]*chain.XdpLink{
		id: {
			ID:    id,
			Root:  true,
			State: chain.XdpLinkState{Tail: true},
		},
	}
	nfs := map[string]chain.InstalledFunction{
		id.String(): {ID: id},
	}

	_, err := Install(links, nfs, "lo", 1, nil)
	ie, ok := err.(*Error)
	if !ok {
		t.Fatalf("Install = %v (%T), want *Error", err, err)
	}
	if ie.Stage != StageMissingNFPayload {
		t.Fatalf("Stage = %v, want StageMissingNFPayload", ie.Stage)
	}
}

func TestToMapSymbol(t *testing.T) {
	cases := map[string]string{
		"blocked_ips":    "BLOCKED_IPS",
		"counters":       "COUNTERS",
		"already_upper":  "ALREADY_UPPER",
		"MixedCase_name": "MIXEDCASE_NAME",
		"":               "",
	}
	for in, want := range cases {
		if got := toMapSymbol(in); got != want {
			t.Errorf("toMapSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}
