package auth

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// oidKerberosV5 identifies the krb5 mechanism inside a SPNEGO
// NegTokenInit (RFC 4121).
var oidKerberosV5 = asn1.ObjectIdentifier{1, 2, 840, 113554, 1, 2, 2}

// ErrUnsupportedMech is returned when a presented SPNEGO token doesn't
// negotiate the krb5 mechanism this module verifies.
var ErrUnsupportedMech = errors.New("auth: unsupported SPNEGO mechanism")

// extractAPReq unwraps a SPNEGO NegTokenInit presented as an agent's
// Kerberos bearer credential and returns its inner krb5 mechanism
// token (an AP-REQ). Handles the one case agent auth needs: a
// client-initiated negotiation offering the krb5 mechanism, with no
// NTLM fallback and no response-token handling.
func extractAPReq(data []byte) ([]byte, error) {
	isInit, token, err := spnego.UnmarshalNegToken(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal spnego token: %w", err)
	}
	if !isInit {
		return nil, ErrUnsupportedMech
	}
	init, ok := token.(spnego.NegTokenInit)
	if !ok {
		return nil, ErrUnsupportedMech
	}
	for _, mech := range init.MechTypes {
		if mech.Equal(oidKerberosV5) {
			return init.MechToken, nil
		}
	}
	return nil, ErrUnsupportedMech
}
