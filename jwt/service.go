package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

// Kind is the service name routed to by the "svc" mint header.
const Kind = "jwt"

// SupportedAlgs lists every JWS algorithm the service can mint and verify.
var SupportedAlgs = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256",
	"ES256", "ES384",
	"EdDSA",
}

// Config configures a Service.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Keys keys.Provider
	// DefaultKid is used when MintOptions.Kid is empty. Defaults to keys.DefaultKid.
	DefaultKid string
	// DefaultAlg is used when MintOptions.Alg is empty. When unset the key's own
	// algorithm is used.
	DefaultAlg string
	// DefaultLifetime applies when MintOptions.Lifetime is zero.
	DefaultLifetime time.Duration
	// Algs restricts the advertised and accepted algorithms. Defaults to SupportedAlgs.
	Algs []string
	Now  func() time.Time
}

// Service mints and verifies compact JWS tokens with keys resolved through a
// keys.Provider. It is safe for concurrent use.
type Service struct {
	cfg     Config
	allowed map[string]struct{}
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Keys == nil {
		return nil, token.Configuration("KeyProviderRequired")
	}
	if cfg.DefaultKid = strings.TrimSpace(cfg.DefaultKid); cfg.DefaultKid == "" {
		cfg.DefaultKid = keys.DefaultKid
	}
	if cfg.DefaultLifetime < 0 {
		return nil, token.Configuration("InvalidLifetime")
	}
	if len(cfg.Algs) == 0 {
		cfg.Algs = SupportedAlgs
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	allowed := make(map[string]struct{}, len(cfg.Algs))
	for _, alg := range cfg.Algs {
		if !isSupported(alg) {
			return nil, token.ErrUnsupportedAlgorithm
		}
		allowed[alg] = struct{}{}
	}
	if cfg.DefaultAlg != "" {
		if _, ok := allowed[cfg.DefaultAlg]; !ok {
			return nil, token.ErrUnsupportedAlgorithm
		}
	}
	cfg.Algs = append([]string(nil), cfg.Algs...)
	return &Service{cfg: cfg, allowed: allowed}, nil
}

func (s *Service) Kind() string { return Kind }

func (s *Service) Variant() token.Variant { return token.VariantPlain }

// Supports reports the JWT/JWS formats and the configured algorithms.
func (s *Service) Supports() token.Capabilities {
	return token.Capabilities{
		Formats: []string{token.FormatJWT, token.FormatJWS},
		Algs:    append([]string(nil), s.cfg.Algs...),
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.cfg.Now() }

// Mint signs claims as a compact JWS.
//
// iss/sub/aud/scope from opts override the caller's values, iat is always set
// to now and exp to now+lifetime when a lifetime is known. The header carries
// alg and the versioned kid; extra headers are copied except alg, kid and svc.
func (s *Service) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	kid := strings.TrimSpace(opts.Kid)
	if kid == "" {
		kid = s.cfg.DefaultKid
	}
	ref, err := s.cfg.Keys.GetKey(ctx, kid, opts.KeyVersion, true)
	if err != nil {
		return "", mapKeyError(ctx, err, token.ErrKeyUnavailable)
	}

	alg := opts.Alg
	if alg == "" {
		alg = s.cfg.DefaultAlg
	}
	if alg == "" {
		alg = keyAlg(ref)
	}
	if _, ok := s.allowed[alg]; !ok {
		return "", token.ErrUnsupportedAlgorithm
	}
	method := gjwt.GetSigningMethod(alg)
	if method == nil {
		return "", token.ErrUnsupportedAlgorithm
	}
	signKey, err := signingKey(alg, ref)
	if err != nil {
		return "", err
	}

	body := claims.Clone()
	token.ApplyRegistered(body, opts, true)
	now := s.cfg.Now()
	body[token.ClaimIssuedAt] = now.Unix()
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = s.cfg.DefaultLifetime
	}
	if lifetime > 0 {
		body[token.ClaimExpiry] = now.Add(lifetime).Unix()
	}

	tok := gjwt.NewWithClaims(method, gjwt.MapClaims(body))
	for k, v := range opts.Headers {
		switch k {
		case "alg", "kid", "svc":
			continue
		}
		tok.Header[k] = v
	}
	tok.Header["kid"] = ref.ID()

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", token.ErrKeyMismatch
	}
	return signed, nil
}

// Verify checks the signature of raw with the key named by its header and
// then applies the shared temporal and identity checks.
func (s *Service) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	if !token.IsCompact(raw) {
		return nil, token.ErrMalformedToken
	}
	parser := gjwt.NewParser()
	unverified, _, err := parser.ParseUnverified(raw, gjwt.MapClaims{})
	if err != nil {
		return nil, token.ErrMalformedToken
	}
	alg, _ := unverified.Header["alg"].(string)
	if _, ok := s.allowed[alg]; !ok {
		return nil, token.ErrDisallowedAlg
	}

	kidHeader, _ := unverified.Header["kid"].(string)
	kid, version := keys.ParseKid(kidHeader)
	if kid == "" {
		kid = s.cfg.DefaultKid
	}
	// HMAC verification needs the shared secret.
	ref, err := s.cfg.Keys.GetKey(ctx, kid, version, isHMAC(alg))
	if err != nil {
		return nil, mapKeyError(ctx, err, token.ErrUnknownKey)
	}
	verifyKey, err := verificationKey(alg, ref)
	if err != nil {
		return nil, token.ErrInvalidSignature
	}

	strict := gjwt.NewParser(gjwt.WithValidMethods([]string{alg}), gjwt.WithoutClaimsValidation())
	parsed, err := strict.ParseWithClaims(raw, gjwt.MapClaims{}, func(*gjwt.Token) (any, error) {
		return verifyKey, nil
	})
	if err != nil || !parsed.Valid {
		if errors.Is(err, gjwt.ErrTokenMalformed) {
			return nil, token.ErrMalformedToken
		}
		return nil, token.ErrInvalidSignature
	}
	mc, ok := parsed.Claims.(gjwt.MapClaims)
	if !ok {
		return nil, token.ErrMalformedToken
	}

	claims := token.Claims(mc)
	if err := token.ValidateClaims(claims, s.cfg.Now(), opts); err != nil {
		return nil, err
	}
	return claims, nil
}

// JWKS returns the provider's public key set.
func (s *Service) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	return s.cfg.Keys.JWKS(ctx)
}

func isSupported(alg string) bool {
	for _, a := range SupportedAlgs {
		if a == alg {
			return true
		}
	}
	return false
}

func isHMAC(alg string) bool { return strings.HasPrefix(alg, "HS") }

func keyAlg(ref keys.KeyRef) string {
	if ref.Alg != "" {
		return ref.Alg
	}
	if ref.Type == keys.TypeSymmetric {
		return "HS256"
	}
	pub, err := ref.PublicKey()
	if err != nil {
		return ""
	}
	return keys.DefaultAlgFor(pub)
}

func signingKey(alg string, ref keys.KeyRef) (any, error) {
	if isHMAC(alg) {
		secret, err := ref.Secret()
		if err != nil {
			return nil, token.ErrKeyMismatch
		}
		return secret, nil
	}
	signer, err := ref.Signer()
	if err != nil {
		return nil, token.ErrKeyMismatch
	}
	if !familyMatches(alg, signer.Public()) {
		return nil, token.ErrKeyMismatch
	}
	return signer, nil
}

func verificationKey(alg string, ref keys.KeyRef) (any, error) {
	if isHMAC(alg) {
		return ref.Secret()
	}
	if ref.Type == keys.TypeSymmetric {
		return nil, keys.ErrInvalidKey
	}
	pub, err := ref.PublicKey()
	if err != nil {
		return nil, err
	}
	if !familyMatches(alg, pub) {
		return nil, keys.ErrInvalidKey
	}
	return pub, nil
}

func familyMatches(alg string, pub any) bool {
	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		_, ok := pub.(*rsa.PublicKey)
		return ok
	case alg == "ES256", alg == "ES384":
		k, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		bits := k.Curve.Params().BitSize
		return (alg == "ES256" && bits == 256) || (alg == "ES384" && bits == 384)
	case alg == "EdDSA":
		_, ok := pub.(ed25519.PublicKey)
		return ok
	default:
		return false
	}
}

// mapKeyError turns provider failures into taxonomy errors. Context errors
// pass through unchanged.
func mapKeyError(ctx context.Context, err error, notFound error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, keys.ErrKeyNotFound) {
		return notFound
	}
	return token.ErrKeyUnavailable
}
