package wire

import "github.com/nfgraph/nfgraph/internal/artifact"

// RequestChain sends a RequestChain message over t and waits for the
// server's response, translating a reported server-side rejection and
// any framing failure into a *TransportError.
func RequestChain(t Transport, targetTriple, bearerToken string) (*artifact.Bundle, error) {
	req := EncodeRequest(ClientToServer{TargetTriple: targetTriple, BearerToken: bearerToken})
	if err := t.Send(req); err != nil {
		return nil, &TransportError{Stage: TransportSend, Detail: err}
	}

	frame, err := t.Recv()
	if err != nil {
		return nil, &TransportError{Stage: TransportReceive, Detail: err}
	}

	resp, err := DecodeResponse(frame)
	if err != nil {
		return nil, &TransportError{Stage: TransportDeserialize, Detail: err}
	}

	if resp.Chain == nil {
		return nil, &TransportError{Stage: TransportServerReported, Reason: resp.ErrorMessage}
	}

	return resp.Chain, nil
}
