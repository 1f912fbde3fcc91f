package paseto

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gopaseto "aidanwoods.dev/go-paseto"
	"github.com/go-jose/go-jose/v4"

	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

// Kind is the service name routed to by the "svc" mint header.
const Kind = "paseto-v4"

// Purpose is a PASETO v4 purpose.
type Purpose string

const (
	Public Purpose = "public"
	Local  Purpose = "local"
)

const (
	prefixPublic = "v4.public."
	prefixLocal  = "v4.local."
)

// Config configures a Service.
type Config struct {
	Keys keys.Provider
	// DefaultKid is used when MintOptions.Kid is empty. Defaults to keys.DefaultKid.
	DefaultKid string
	// DefaultPurpose applies when MintOptions.Alg is empty. Defaults to Public.
	DefaultPurpose  Purpose
	DefaultLifetime time.Duration
	// LocalKeyIDs are the symmetric keys tried, in order, for v4.local tokens.
	// Entries are "<kid>" (latest version) or "<kid>.<version>". Defaults to
	// DefaultKid. Local mints without an explicit kid use the first entry.
	LocalKeyIDs []string
	Now         func() time.Time
}

// Service mints and verifies PASETO v4 tokens.
type Service struct {
	cfg Config
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Keys == nil {
		return nil, token.Configuration("KeyProviderRequired")
	}
	if cfg.DefaultKid = strings.TrimSpace(cfg.DefaultKid); cfg.DefaultKid == "" {
		cfg.DefaultKid = keys.DefaultKid
	}
	switch cfg.DefaultPurpose {
	case "":
		cfg.DefaultPurpose = Public
	case Public, Local:
	default:
		return nil, token.ErrUnsupportedAlgorithm
	}
	if len(cfg.LocalKeyIDs) == 0 {
		cfg.LocalKeyIDs = []string{cfg.DefaultKid}
	}
	cfg.LocalKeyIDs = append([]string(nil), cfg.LocalKeyIDs...)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

func (s *Service) Kind() string { return Kind }

func (s *Service) Variant() token.Variant { return token.VariantNone }

func (s *Service) Supports() token.Capabilities {
	return token.Capabilities{
		Formats: []string{token.FormatPASETO},
		Algs:    []string{"v4.public", "v4.local"},
	}
}

// Mint issues a v4 token. Registered claims are filled only when absent.
func (s *Service) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	purpose, err := s.purposeFor(opts.Alg)
	if err != nil {
		return "", err
	}
	kid, version := strings.TrimSpace(opts.Kid), opts.KeyVersion
	if kid == "" {
		kid = s.cfg.DefaultKid
		if purpose == Local {
			// local tokens must stay decryptable, so they default to the
			// first allow-listed key
			kid, version = keys.ParseKid(s.cfg.LocalKeyIDs[0])
			if opts.KeyVersion != nil {
				version = opts.KeyVersion
			}
		}
	}
	ref, err := s.cfg.Keys.GetKey(ctx, kid, version, true)
	if err != nil {
		return "", keyError(ctx, err)
	}

	body := claims.Clone()
	token.ApplyRegistered(body, opts, false)
	now := s.cfg.Now()
	if !body.Has(token.ClaimIssuedAt) {
		body[token.ClaimIssuedAt] = now.UTC().Format(time.RFC3339)
	}
	if !body.Has(token.ClaimNotBefore) {
		body[token.ClaimNotBefore] = now.UTC().Format(time.RFC3339)
	}
	lifetime := opts.Lifetime
	if lifetime <= 0 {
		lifetime = s.cfg.DefaultLifetime
	}
	if !body.Has(token.ClaimExpiry) && lifetime > 0 {
		body[token.ClaimExpiry] = now.Add(lifetime).UTC().Format(time.RFC3339)
	}

	tok := gopaseto.NewToken()
	for k, v := range body {
		if err := tok.Set(k, v); err != nil {
			return "", token.Malformed("UnencodableClaim")
		}
	}
	footer, err := json.Marshal(map[string]string{"kid": ref.ID()})
	if err != nil {
		return "", err
	}
	tok.SetFooter(footer)

	switch purpose {
	case Local:
		secret, err := ref.Secret()
		if err != nil || len(secret) != 32 {
			return "", token.ErrKeyMismatch
		}
		key, err := gopaseto.V4SymmetricKeyFromBytes(secret)
		if err != nil {
			return "", token.ErrKeyMismatch
		}
		return tok.V4Encrypt(key, nil), nil
	default:
		signer, err := ref.Signer()
		if err != nil {
			return "", token.ErrKeyMismatch
		}
		priv, ok := signer.(ed25519.PrivateKey)
		if !ok {
			return "", token.ErrKeyMismatch
		}
		key, err := gopaseto.NewV4AsymmetricSecretKeyFromBytes(priv)
		if err != nil {
			return "", token.ErrKeyMismatch
		}
		return tok.V4Sign(key, nil), nil
	}
}

// Verify authenticates raw against the candidate keys of its purpose and
// then applies the shared claim checks.
func (s *Service) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	var (
		claims map[string]any
		err    error
	)
	switch {
	case strings.HasPrefix(raw, prefixPublic):
		claims, err = s.verifyPublic(ctx, raw)
	case strings.HasPrefix(raw, prefixLocal):
		claims, err = s.verifyLocal(ctx, raw)
	case strings.HasPrefix(raw, "v4."):
		return nil, token.ErrMalformedToken
	case looksVersioned(raw):
		return nil, token.ErrUnsupportedVersion
	default:
		return nil, token.ErrMalformedToken
	}
	if err != nil {
		return nil, err
	}

	out := token.Claims(claims)
	if err := token.ValidateClaims(out, s.cfg.Now(), opts); err != nil {
		return nil, err
	}
	return out, nil
}

// JWKS returns the provider's Ed25519 keys, the only ones v4.public uses.
func (s *Service) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	set, err := s.cfg.Keys.JWKS(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	out := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}
	for _, k := range set.Keys {
		if _, ok := k.Key.(ed25519.PublicKey); ok {
			out.Keys = append(out.Keys, k)
		}
	}
	return out, nil
}

func (s *Service) verifyPublic(ctx context.Context, raw string) (map[string]any, error) {
	set, err := s.cfg.Keys.JWKS(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, token.ErrKeyUnavailable
	}
	parser := gopaseto.MakeParser(nil)
	hint := footerKid(parser, gopaseto.V4Public, raw)
	candidates := make([]jose.JSONWebKey, 0, len(set.Keys))
	for _, k := range set.Keys {
		if _, ok := k.Key.(ed25519.PublicKey); !ok {
			continue
		}
		if hint != "" && k.KeyID == hint {
			candidates = append([]jose.JSONWebKey{k}, candidates...)
			continue
		}
		candidates = append(candidates, k)
	}

	for _, k := range candidates {
		pub, err := gopaseto.NewV4AsymmetricPublicKeyFromBytes(k.Key.(ed25519.PublicKey))
		if err != nil {
			continue
		}
		tok, err := parser.ParseV4Public(pub, raw, nil)
		if err == nil {
			return tok.Claims(), nil
		}
	}
	return nil, token.ErrVerificationFailed
}

func (s *Service) verifyLocal(ctx context.Context, raw string) (map[string]any, error) {
	parser := gopaseto.MakeParser(nil)
	hint := footerKid(parser, gopaseto.V4Local, raw)
	ids := make([]string, 0, len(s.cfg.LocalKeyIDs)+1)
	if hint != "" {
		hintKid, _ := keys.ParseKid(hint)
		for _, id := range s.cfg.LocalKeyIDs {
			if allowKid, _ := keys.ParseKid(id); allowKid == hintKid {
				ids = append(ids, hint)
				break
			}
		}
	}
	ids = append(ids, s.cfg.LocalKeyIDs...)

	for _, id := range ids {
		kid, version := keys.ParseKid(id)
		ref, err := s.cfg.Keys.GetKey(ctx, kid, version, true)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			continue
		}
		secret, err := ref.Secret()
		if err != nil || len(secret) != 32 {
			continue
		}
		key, err := gopaseto.V4SymmetricKeyFromBytes(secret)
		if err != nil {
			continue
		}
		tok, err := parser.ParseV4Local(key, raw, nil)
		if err == nil {
			return tok.Claims(), nil
		}
	}
	return nil, token.ErrVerificationFailed
}

func (s *Service) purposeFor(alg string) (Purpose, error) {
	switch strings.ToLower(alg) {
	case "":
		return s.cfg.DefaultPurpose, nil
	case "v4.public", "public":
		return Public, nil
	case "v4.local", "local":
		return Local, nil
	default:
		return "", token.ErrUnsupportedAlgorithm
	}
}

// footerKid reads the unauthenticated footer kid. It only orders candidates.
func footerKid(parser gopaseto.Parser, protocol gopaseto.Protocol, raw string) string {
	footer, err := parser.UnsafeParseFooter(protocol, raw)
	if err != nil || len(footer) == 0 {
		return ""
	}
	var hint struct {
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(footer, &hint); err != nil {
		return ""
	}
	return hint.Kid
}

// looksVersioned reports whether raw has a "v<digits>.<purpose>." prefix.
func looksVersioned(raw string) bool {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) < 3 || len(parts[0]) < 2 || parts[0][0] != 'v' {
		return false
	}
	for _, c := range parts[0][1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return parts[1] == string(Public) || parts[1] == string(Local)
}

func keyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return token.ErrKeyUnavailable
}
