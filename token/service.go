package token

import (
	"context"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Variant distinguishes the JWT sub-kinds the router prefers between.
type Variant uint8

const (
	// VariantNone marks services that do not emit compact JWTs.
	VariantNone Variant = iota
	VariantPlain
	VariantCertBound
	VariantDPoPBound
)

func (v Variant) String() string {
	switch v {
	case VariantPlain:
		return "plain"
	case VariantCertBound:
		return "cert-bound"
	case VariantDPoPBound:
		return "dpop-bound"
	default:
		return "none"
	}
}

// Well-known format names advertised in Capabilities.
const (
	FormatJWT     = "JWT"
	FormatJWS     = "JWS"
	FormatPASETO  = "PASETO"
	FormatSSHCert = "SSH-CERT"
)

// Capabilities advertises the formats and algorithms a service handles.
type Capabilities struct {
	Formats []string `json:"formats"`
	Algs    []string `json:"algs"`
}

// MintOptions carries the per-call mint parameters.
type MintOptions struct {
	Alg        string
	Kid        string
	KeyVersion *int
	// Headers are extra protected headers. "svc" and "typ" double as routing hints.
	Headers  map[string]any
	Lifetime time.Duration
	Issuer   string
	Subject  string
	Audience []string
	Scope    string
}

// VerifyOptions carries the per-call verification expectations.
type VerifyOptions struct {
	Issuer   string
	Audience []string
	Leeway   time.Duration
}

// Service is the capability surface shared by every token format.
type Service interface {
	// Kind is the stable service name matched by the "svc" mint header.
	Kind() string
	Variant() Variant
	Supports() Capabilities
	Mint(ctx context.Context, claims Claims, opts MintOptions) (string, error)
	Verify(ctx context.Context, raw string, opts VerifyOptions) (Claims, error)
	JWKS(ctx context.Context) (jose.JSONWebKeySet, error)
}

// Version returns a pointer to v, for MintOptions.KeyVersion.
func Version(v int) *int {
	return &v
}
