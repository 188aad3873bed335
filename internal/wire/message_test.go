package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/nfgraph/nfgraph/internal/artifact"
	"github.com/nfgraph/nfgraph/internal/chain"
)

// pipeTransport lets a test drive RequestChain without a real socket.
type pipeTransport struct {
	sent []byte
	resp []byte
}

func (p *pipeTransport) Send(frame []byte) error { p.sent = frame; return nil }
func (p *pipeTransport) Recv() ([]byte, error)    { return p.resp, nil }
func (p *pipeTransport) Close() error             { return nil }

func TestRequestResponse_RoundTrip(t *testing.T) {
	req := ClientToServer{TargetTriple: "x86_64-unknown-linux-gnu", BearerToken: "tok"}
	encoded := EncodeRequest(req)
	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded != req {
		t.Fatalf("decoded = %+v, want %+v", decoded, req)
	}
}

func TestRequestChain_Success(t *testing.T) {
	id := uuid.New()
	bundle := &artifact.Bundle{
		Links: []chain.XdpLink{{ID: id, State: chain.XdpLinkState{Tail: true}}},
		NFs:   map[string]chain.InstalledFunction{id.String(): {ID: id}},
	}
	frame, err := EncodeResponse(ServerToClient{Chain: bundle})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	tr := &pipeTransport{resp: frame}
	got, err := RequestChain(tr, "x86_64-unknown-linux-gnu", "tok")
	if err != nil {
		t.Fatalf("RequestChain: %v", err)
	}
	if len(got.Links) != 1 || got.Links[0].ID != id {
		t.Fatalf("got = %+v", got)
	}
	if !bytes.Contains(tr.sent, []byte("x86_64-unknown-linux-gnu")) {
		t.Fatalf("sent frame missing target triple: %x", tr.sent)
	}
}

func TestRequestChain_ServerError(t *testing.T) {
	frame, err := EncodeResponse(ServerToClient{ErrorMessage: "unsupported target"})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	tr := &pipeTransport{resp: frame}

	_, err = RequestChain(tr, "riscv64-unknown-linux-gnu", "")
	te, ok := err.(*TransportError)
	if !ok || te.Stage != TransportServerReported || te.Reason != "unsupported target" {
		t.Fatalf("err = %v, want TransportServerReported", err)
	}
}
