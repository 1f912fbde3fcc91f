package mtls

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"

	"github.com/go-jose/go-jose/v4"

	"github.com/MrEthical07/goToken/token"
)

// Kind is the service name routed to by the "svc" mint header.
const Kind = "mtls-jwt"

// CertificateFunc returns the client certificate of the current call.
type CertificateFunc func(ctx context.Context) (*x509.Certificate, bool)

// Config configures a Service.
type Config struct {
	Base token.Service
	// Certificate defaults to token.ClientCertificateFrom. It is read at mint
	// time to stamp the binding and at verify time to check it.
	Certificate    CertificateFunc
	EnforceBinding bool
}

// Service binds JWT access tokens to a TLS client certificate through
// cnf.x5t#S256 (RFC 8705).
type Service struct {
	cfg Config
}

// New returns a certificate-bound service over cfg.Base.
func New(cfg Config) (*Service, error) {
	if cfg.Base == nil {
		return nil, token.Configuration("BaseServiceRequired")
	}
	if cfg.Certificate == nil {
		cfg.Certificate = token.ClientCertificateFrom
	}
	return &Service{cfg: cfg}, nil
}

func (s *Service) Kind() string { return Kind }

func (s *Service) Variant() token.Variant { return token.VariantCertBound }

func (s *Service) Supports() token.Capabilities { return s.cfg.Base.Supports() }

func (s *Service) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	return s.cfg.Base.JWKS(ctx)
}

// Mint stamps cnf.x5t#S256 from the client certificate unless claims already
// carry a cnf, then delegates to the base service.
func (s *Service) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	if !claims.Has(token.ClaimConfirm) {
		cert, ok := s.cfg.Certificate(ctx)
		if !ok {
			return "", token.ErrMissingBinding
		}
		claims = claims.Clone()
		claims[token.ClaimConfirm] = map[string]any{token.CnfX5TS256: CertificateThumbprint(cert)}
	}
	return s.cfg.Base.Mint(ctx, claims, opts)
}

// Verify runs base verification and, when enforced, compares the bound
// thumbprint with the presented certificate.
func (s *Service) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	claims, err := s.cfg.Base.Verify(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	if !s.cfg.EnforceBinding {
		return claims, nil
	}
	bound, ok := claims.ConfirmationValue(token.CnfX5TS256)
	if !ok {
		return nil, token.ErrMissingBinding
	}
	cert, ok := s.cfg.Certificate(ctx)
	if !ok {
		return nil, token.ErrMissingContext
	}
	if subtle.ConstantTimeCompare([]byte(CertificateThumbprint(cert)), []byte(bound)) != 1 {
		return nil, token.ErrBindingMismatch
	}
	return claims, nil
}

// CertificateThumbprint is base64url(SHA-256(DER)) of cert.
func CertificateThumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
