package dpop

import (
	"context"
	"crypto"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/MrEthical07/goToken/token"
)

// Kind is the service name routed to by the "svc" mint header.
const Kind = "dpop-jwt"

// DefaultMaxProofAge bounds how old a proof's iat may be.
const DefaultMaxProofAge = 60 * time.Second

// HolderKeyFunc returns the client public key a minted token is bound to.
type HolderKeyFunc func(ctx context.Context) (crypto.PublicKey, error)

// ProofContextFunc returns the proof evidence of the request being verified.
type ProofContextFunc func(ctx context.Context) (*token.ProofContext, bool)

// Config configures a Service.
type Config struct {
	// Base signs and verifies the access token itself.
	Base token.Service
	// HolderKey defaults to HolderKeyFrom.
	HolderKey HolderKeyFunc
	// ProofContext defaults to token.ProofContextFrom.
	ProofContext ProofContextFunc
	// Replay is optional; without it jti values are only checked for presence.
	Replay ReplayChecker
	// EnforceProofs turns on every post-signature binding check.
	EnforceProofs bool
	MaxProofAge   time.Duration
	// MaxClockSkew caps how far in the future a proof iat may be. The
	// per-call VerifyOptions.Leeway is clamped to it; zero allows none.
	MaxClockSkew time.Duration
	Now          func() time.Time
}

// Service wraps a base JWT service and binds its tokens to a client key
// through cnf.jkt. Verification checks the accompanying DPoP proof.
type Service struct {
	cfg Config
}

// New returns a DPoP-bound service over cfg.Base.
func New(cfg Config) (*Service, error) {
	if cfg.Base == nil {
		return nil, token.Configuration("BaseServiceRequired")
	}
	if cfg.HolderKey == nil {
		cfg.HolderKey = HolderKeyFrom
	}
	if cfg.ProofContext == nil {
		cfg.ProofContext = token.ProofContextFrom
	}
	if cfg.MaxProofAge <= 0 {
		cfg.MaxProofAge = DefaultMaxProofAge
	}
	if cfg.MaxClockSkew < 0 {
		cfg.MaxClockSkew = 0
	}
	// a proof is acceptable for MaxProofAge+MaxClockSkew, so its jti must be
	// remembered at least that long
	if r, ok := cfg.Replay.(ttlReporter); ok && r.TTL() < cfg.MaxProofAge+cfg.MaxClockSkew {
		return nil, token.Configuration("ReplayWindowTooShort")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

func (s *Service) Kind() string { return Kind }

func (s *Service) Variant() token.Variant { return token.VariantDPoPBound }

func (s *Service) Supports() token.Capabilities { return s.cfg.Base.Supports() }

func (s *Service) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	return s.cfg.Base.JWKS(ctx)
}

// Enforcing reports whether proofs are checked on verify.
func (s *Service) Enforcing() bool { return s.cfg.EnforceProofs }

// Mint binds claims to the holder key and delegates signing to the base
// service. Claims that already carry cnf are passed through untouched.
func (s *Service) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	if !claims.Has(token.ClaimConfirm) {
		pub, err := s.cfg.HolderKey(ctx)
		if err != nil || pub == nil {
			return "", token.ErrMissingBinding
		}
		jkt, err := Thumbprint(pub)
		if err != nil {
			return "", token.ErrMissingBinding
		}
		claims = claims.Clone()
		claims[token.ClaimConfirm] = map[string]any{token.CnfJKT: jkt}
	}
	return s.cfg.Base.Mint(ctx, claims, opts)
}

// Verify runs base verification and then, when enforcement is on, the proof
// checks in a fixed order, failing on the first one that does not hold.
func (s *Service) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	claims, err := s.cfg.Base.Verify(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	if !s.cfg.EnforceProofs {
		return claims, nil
	}

	jkt, ok := claims.ConfirmationValue(token.CnfJKT)
	if !ok {
		return nil, token.ErrMissingBinding
	}
	pc, ok := s.cfg.ProofContext(ctx)
	if !ok || !pc.Complete() {
		return nil, token.ErrMissingContext
	}

	proof, err := parseProof(pc.Proof)
	if err != nil {
		return nil, err
	}
	if err := proof.checkBinding(jkt); err != nil {
		return nil, err
	}
	if err := proof.checkRequest(pc, raw); err != nil {
		return nil, err
	}
	skew := min(opts.Leeway, s.cfg.MaxClockSkew)
	if err := proof.checkFreshness(s.cfg.Now(), s.cfg.MaxProofAge, skew); err != nil {
		return nil, err
	}
	if proof.jti == "" {
		return nil, token.ErrMissingJTI
	}
	if s.cfg.Replay != nil {
		fresh, err := s.cfg.Replay.CheckAndMark(ctx, proof.jti)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, token.ErrReplayCheckUnavailable
		}
		if !fresh {
			return nil, token.ErrProofReplayed
		}
	}
	return claims, nil
}

type holderKeyContextKey struct{}

// WithHolderKey attaches the client public key used by the default HolderKey accessor.
func WithHolderKey(ctx context.Context, pub crypto.PublicKey) context.Context {
	return context.WithValue(ctx, holderKeyContextKey{}, pub)
}

// HolderKeyFrom reads the key attached by WithHolderKey.
func HolderKeyFrom(ctx context.Context) (crypto.PublicKey, error) {
	pub, ok := ctx.Value(holderKeyContextKey{}).(crypto.PublicKey)
	if !ok || pub == nil {
		return nil, token.ErrMissingBinding
	}
	return pub, nil
}
