// Package auth issues and validates the bearer tokens agents present
// when calling RequestChain over internal/wire: HMAC-signed against a
// single shared secret, one token kind only, since an agent's identity
// claim never needs the access/refresh split a human session does.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidSecretLength = errors.New("jwt secret must be at least 32 characters")
)

// Claims identifies the agent a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	AgentID      string `json:"agent_id"`
	TargetTriple string `json:"target_triple"`
}

// Config configures a Service.
type Config struct {
	// Secret is the HMAC signing key; must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "nfgraph".
	Issuer string

	// TokenDuration is how long an issued token remains valid.
	// Default: 1 hour.
	TokenDuration time.Duration
}

// Authenticator validates an agent's RequestChain bearer credential and
// returns the agent identity it authenticates to. Service (the "jwt"
// auth mode) and KerberosValidator (the "kerberos" auth mode) both
// implement it, letting chaind's accept loop stay mode-agnostic.
type Authenticator interface {
	Authenticate(credential string) (agentID string, err error)
}

// Service issues and validates agent bearer tokens.
type Service struct {
	cfg Config
}

// New creates a Service, applying defaults for Issuer/TokenDuration.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "nfgraph"
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = time.Hour
	}
	return &Service{cfg: cfg}, nil
}

// IssueToken signs a bearer token identifying agentID/targetTriple.
func (s *Service) IssueToken(agentID, targetTriple string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.TokenDuration)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AgentID:      agentID,
		TargetTriple: targetTriple,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate implements Authenticator for the "jwt" auth mode.
func (s *Service) Authenticate(credential string) (string, error) {
	claims, err := s.ValidateToken(credential)
	if err != nil {
		return "", err
	}
	return claims.AgentID, nil
}
