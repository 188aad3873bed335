package artifact

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/chain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	bundle := &Bundle{
		Links: []chain.XdpLink{
			{
				ID:   a,
				Root: true,
				State: chain.XdpLinkState{
					Actions: []chain.LinkAction{
						{Kind: chain.ActionTailcall, Next: b},
						{Kind: chain.ActionTx},
					},
				},
				MapNames: []string{"blocked_ips"},
			},
			{
				ID:    b,
				State: chain.XdpLinkState{Tail: true},
			},
		},
		NFs: map[string]chain.InstalledFunction{
			a.String(): {
				ID:       a,
				EBPF:     &chain.EBPFPayload{LinkForm: []byte{1, 2, 3}, TailForm: []byte{4, 5}},
				MapNames: []string{"blocked_ips"},
			},
			b.String(): {
				ID:  b,
				Elf: []byte{9, 9, 9, 9},
			},
		},
	}

	encoded, err := Encode(bundle)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	reEncoded, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(encoded, reEncoded) {
		t.Fatalf("round-trip not byte-identical:\n%x\n%x", encoded, reEncoded)
	}

	if len(decoded.Links) != 2 || decoded.Links[0].ID != a || !decoded.Links[1].State.Tail {
		t.Fatalf("decoded links mismatch: %+v", decoded.Links)
	}
	if string(decoded.NFs[a.String()].EBPF.LinkForm) != "\x01\x02\x03" {
		t.Fatalf("decoded EBPF.LinkForm mismatch: %+v", decoded.NFs[a.String()].EBPF)
	}
}
