package auth

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
)

// KerberosConfig configures KerberosValidator with what agent-ticket
// verification needs: no hot-reload, no identity mapping, no
// RPCSEC_GSS state machine.
type KerberosConfig struct {
	KeytabPath       string
	Krb5ConfPath     string
	ServicePrincipal string
	MaxClockSkew     time.Duration
}

// KerberosValidator authenticates an agent's RequestChain by verifying
// a SPNEGO-wrapped Kerberos AP-REQ against a loaded service keytab —
// the "kerberos" auth mode, an alternative to the default "jwt"
// mode for deployments that already run a KDC for their fleet.
type KerberosValidator struct {
	kt               *keytab.Keytab
	servicePrincipal string
	maxClockSkew     time.Duration
}

// NewKerberosValidator loads cfg.KeytabPath and, if set, validates
// cfg.Krb5ConfPath. There is no keytab hot-reload path: the compiler
// process re-reads the keytab on restart only.
func NewKerberosValidator(cfg KerberosConfig) (*KerberosValidator, error) {
	if cfg.KeytabPath == "" {
		return nil, fmt.Errorf("kerberos keytab path not configured")
	}
	if cfg.ServicePrincipal == "" {
		return nil, fmt.Errorf("kerberos service principal not configured")
	}

	data, err := os.ReadFile(cfg.KeytabPath)
	if err != nil {
		return nil, fmt.Errorf("read keytab %s: %w", cfg.KeytabPath, err)
	}
	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab %s: %w", cfg.KeytabPath, err)
	}

	if cfg.Krb5ConfPath != "" {
		if _, err := krb5config.Load(cfg.Krb5ConfPath); err != nil {
			return nil, fmt.Errorf("parse krb5.conf %s: %w", cfg.Krb5ConfPath, err)
		}
	}

	skew := cfg.MaxClockSkew
	if skew == 0 {
		skew = 5 * time.Minute
	}

	return &KerberosValidator{kt: kt, servicePrincipal: cfg.ServicePrincipal, maxClockSkew: skew}, nil
}

// ValidateTicket verifies a base64-encoded, SPNEGO-wrapped AP-REQ and
// returns the client principal it authenticates.
func (v *KerberosValidator) ValidateTicket(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode kerberos credential: %w", err)
	}

	apReqBytes, err := extractAPReq(raw)
	if err != nil {
		return "", err
	}

	var apReq messages.APReq
	if err := apReq.Unmarshal(apReqBytes); err != nil {
		return "", fmt.Errorf("unmarshal AP-REQ: %w", err)
	}

	settings := service.NewSettings(v.kt,
		service.MaxClockSkew(v.maxClockSkew),
		service.KeytabPrincipal(v.servicePrincipal))

	ok, creds, err := service.VerifyAPREQ(&apReq, settings)
	if err != nil {
		return "", fmt.Errorf("verify AP-REQ: %w", err)
	}
	if !ok {
		return "", ErrInvalidToken
	}
	return creds.CName().PrincipalNameString(), nil
}

// Authenticate implements Authenticator for the "kerberos" auth mode.
func (v *KerberosValidator) Authenticate(credential string) (string, error) {
	return v.ValidateTicket(credential)
}
