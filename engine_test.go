package goToken

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

var testNow = time.Unix(1_700_000_000, 0)

const (
	testMethod = "GET"
	testURI    = "https://api.example.com/orders"
)

func newTestProvider(t *testing.T) *keys.StaticProvider {
	t.Helper()
	p := keys.NewStaticProvider()
	for _, k := range []struct {
		kid string
		typ keys.Type
	}{
		{keys.DefaultKid, keys.TypeEC},
		{"paseto", keys.TypeEd25519},
		{"local", keys.TypeSymmetric},
		{"user-ca", keys.TypeEd25519},
	} {
		if _, err := p.Generate(k.kid, k.typ, 0); err != nil {
			t.Fatalf("generate %s: %v", k.kid, err)
		}
	}
	return p
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Paseto.DefaultKid = "paseto"
	cfg.Paseto.LocalKeyIDs = []string{"local"}
	cfg.SSH.CAKid = "user-ca"
	return cfg
}

func buildTestEngine(t *testing.T, cfg Config, configure ...func(*Builder)) *Engine {
	t.Helper()
	b := New().
		WithConfig(cfg).
		WithKeyProvider(newTestProvider(t)).
		WithClock(func() time.Time { return testNow })
	for _, fn := range configure {
		fn(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func newHolder(t *testing.T) crypto.Signer {
	t.Helper()
	_, k, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("holder key: %v", err)
	}
	return k
}

func mintBound(t *testing.T, e *Engine, holder crypto.Signer) string {
	t.Helper()
	ctx := dpop.WithHolderKey(context.Background(), holder.Public())
	raw, err := e.Mint(ctx, token.Claims{"sub": "alice"}, token.MintOptions{
		Headers: map[string]any{"svc": ServiceDPoP},
	})
	if err != nil {
		t.Fatalf("mint bound token: %v", err)
	}
	return raw
}

func proofContext(t *testing.T, holder crypto.Signer, accessToken string) context.Context {
	t.Helper()
	proof, err := dpop.NewProof(holder, testMethod, testURI, dpop.ProofOptions{IssuedAt: testNow, AccessToken: accessToken})
	if err != nil {
		t.Fatalf("new proof: %v", err)
	}
	return token.WithProofContext(context.Background(), token.ProofContext{Proof: proof, HTM: testMethod, HTU: testURI})
}

func TestBuilderRequiresKeyProvider(t *testing.T) {
	_, err := New().Build()
	if !errors.Is(err, ErrKeyProviderRequired) {
		t.Fatalf("expected ErrKeyProviderRequired, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithKeyProvider(newTestProvider(t))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuilderRedisBackendNeedsClient(t *testing.T) {
	cfg := testConfig()
	cfg.DPoP.Replay.Backend = ReplayRedis
	_, err := New().WithConfig(cfg).WithKeyProvider(newTestProvider(t)).Build()
	if !errors.Is(err, ErrRedisRequired) {
		t.Fatalf("expected ErrRedisRequired, got %v", err)
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Services = []string{"kerberos"}
	_, err := New().WithConfig(cfg).WithKeyProvider(newTestProvider(t)).Build()
	if !errors.Is(err, ErrUnknownServiceType) {
		t.Fatalf("expected ErrUnknownServiceType, got %v", err)
	}
}

func TestEngineNilSafe(t *testing.T) {
	var e *Engine
	if _, err := e.Mint(context.Background(), nil, token.MintOptions{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Verify(context.Background(), "x", token.VerifyOptions{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if got := e.MetricsSnapshot(); len(got.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got.Counters)
	}
}

func TestEnginePlainRoundTrip(t *testing.T) {
	e := buildTestEngine(t, testConfig())

	raw, err := e.Mint(context.Background(), token.Claims{"sub": "alice", "role": "admin"}, token.MintOptions{
		Issuer:   "https://issuer.example",
		Audience: []string{"api"},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := e.Verify(context.Background(), raw, token.VerifyOptions{
		Issuer:   "https://issuer.example",
		Audience: []string{"api"},
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims["sub"] != "alice" || claims["role"] != "admin" {
		t.Fatalf("unexpected claims %v", claims)
	}
	exp, ok := claims.Time(token.ClaimExpiry)
	if !ok || exp.Before(testNow) || exp.After(testNow.Add(15*time.Minute)) {
		t.Fatalf("exp %v outside [now, now+lifetime]", exp)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricMintSuccess] != 1 || snap.Counters[MetricVerifySuccess] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestEngineBoundTokenLifecycle(t *testing.T) {
	e := buildTestEngine(t, testConfig())
	holder := newHolder(t)
	raw := mintBound(t, e, holder)

	_, payload, ok := token.PeekCompact(raw)
	if !ok {
		t.Fatal("bound token is not compact")
	}
	jkt, err := dpop.Thumbprint(holder.Public())
	if err != nil {
		t.Fatalf("thumbprint: %v", err)
	}
	if got, _ := payload.ConfirmationValue(token.CnfJKT); got != jkt {
		t.Fatalf("cnf.jkt = %q, want %q", got, jkt)
	}

	if _, err := e.Verify(context.Background(), raw, token.VerifyOptions{}); !errors.Is(err, token.ErrMissingContext) {
		t.Fatalf("expected MissingContext without proof, got %v", err)
	}

	ctx := proofContext(t, holder, raw)
	claims, err := e.Verify(ctx, raw, token.VerifyOptions{})
	if err != nil {
		t.Fatalf("verify with proof: %v", err)
	}
	if claims["sub"] != "alice" {
		t.Fatalf("unexpected claims %v", claims)
	}

	if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); !errors.Is(err, token.ErrProofReplayed) {
		t.Fatalf("expected replayed proof, got %v", err)
	}

	other := proofContext(t, newHolder(t), raw)
	if _, err := e.Verify(other, raw, token.VerifyOptions{}); !errors.Is(err, token.ErrBindingMismatch) {
		t.Fatalf("expected binding mismatch for foreign key, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricBindingFailure] != 2 {
		t.Fatalf("expected 2 binding failures, got %d", snap.Counters[MetricBindingFailure])
	}
	if snap.Counters[MetricReplayDetected] != 1 {
		t.Fatalf("expected 1 replay, got %d", snap.Counters[MetricReplayDetected])
	}
	if snap.Counters[MetricVerifyFallback] != 0 {
		t.Fatalf("strict fallback retried a bound token: %d", snap.Counters[MetricVerifyFallback])
	}
}

func TestEngineBlanketFallbackAcceptsBoundTokenAsBearer(t *testing.T) {
	cfg := testConfig()
	cfg.Router.StrictFallback = false
	e := buildTestEngine(t, cfg)
	raw := mintBound(t, e, newHolder(t))

	if _, err := e.Verify(context.Background(), raw, token.VerifyOptions{}); err != nil {
		t.Fatalf("expected plain service to accept via fallback, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricVerifyFallback]; got != 1 {
		t.Fatalf("expected one fallback, got %d", got)
	}
}

func TestEngineRedisReplayBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.DPoP.Replay.Backend = ReplayRedis
	e := buildTestEngine(t, cfg, func(b *Builder) { b.WithRedis(client) })

	holder := newHolder(t)
	raw := mintBound(t, e, holder)
	ctx := proofContext(t, holder, raw)

	if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); !errors.Is(err, token.ErrProofReplayed) {
		t.Fatalf("expected replay, got %v", err)
	}
	if len(mr.Keys()) != 1 || !strings.HasPrefix(mr.Keys()[0], "gt:jti:") {
		t.Fatalf("unexpected redis keys %v", mr.Keys())
	}

	mr.Close()
	next := proofContext(t, holder, raw)
	if _, err := e.Verify(next, raw, token.VerifyOptions{}); !errors.Is(err, token.ErrReplayCheckUnavailable) {
		t.Fatalf("expected fail-closed replay check, got %v", err)
	}
}

func TestEngineReplayCoversFutureDatedProof(t *testing.T) {
	var clock atomic.Int64
	clock.Store(testNow.UnixNano())
	now := func() time.Time { return time.Unix(0, clock.Load()) }

	cfg := testConfig()
	cfg.Verify.Leeway = 30 * time.Second
	cfg.DPoP.MaxProofAge = time.Minute
	cfg.DPoP.Replay.TTL = cfg.DPoP.MaxProofAge + cfg.Verify.Leeway
	e := buildTestEngine(t, cfg, func(b *Builder) { b.WithClock(now) })

	holder := newHolder(t)
	raw := mintBound(t, e, holder)
	future := func(ahead time.Duration) context.Context {
		proof, err := dpop.NewProof(holder, testMethod, testURI, dpop.ProofOptions{IssuedAt: testNow.Add(ahead), AccessToken: raw})
		if err != nil {
			t.Fatalf("new proof: %v", err)
		}
		return token.WithProofContext(context.Background(), token.ProofContext{Proof: proof, HTM: testMethod, HTU: testURI})
	}
	// a per-call leeway wider than the configured one is clamped
	wide := token.VerifyOptions{Leeway: time.Hour}

	if _, err := e.Verify(future(31*time.Second), raw, wide); !errors.Is(err, token.ErrFutureProof) {
		t.Fatalf("expected proof beyond the configured skew to be rejected, got %v", err)
	}

	ctx := future(30 * time.Second)
	if _, err := e.Verify(ctx, raw, wide); err != nil {
		t.Fatalf("first presentation: %v", err)
	}
	for _, after := range []time.Duration{70 * time.Second, 89 * time.Second} {
		clock.Store(testNow.Add(after).UnixNano())
		if _, err := e.Verify(ctx, raw, wide); !errors.Is(err, token.ErrProofReplayed) {
			t.Fatalf("at +%s: expected replay while the proof is still fresh, got %v", after, err)
		}
	}
	clock.Store(testNow.Add(90 * time.Second).UnixNano())
	if _, err := e.Verify(ctx, raw, wide); !errors.Is(err, token.ErrStaleProof) {
		t.Fatalf("expected stale proof once the replay entry can expire, got %v", err)
	}
}

func TestConfigReplayTTLMustCoverLeeway(t *testing.T) {
	cfg := testConfig()
	cfg.Verify.Leeway = 30 * time.Second
	cfg.DPoP.MaxProofAge = time.Minute
	cfg.DPoP.Replay.TTL = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected replay ttl equal to MaxProofAge to be refused when leeway is set")
	}
	cfg.DPoP.Replay.TTL = 90 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected ttl covering proof age plus leeway to validate, got %v", err)
	}
}

func TestEngineCustomReplayChecker(t *testing.T) {
	calls := 0
	checker := dpop.ReplayCheckerFunc(func(ctx context.Context, jti string) (bool, error) {
		calls++
		return true, nil
	})
	e := buildTestEngine(t, testConfig(), func(b *Builder) { b.WithReplayChecker(checker) })
	holder := newHolder(t)
	raw := mintBound(t, e, holder)
	if _, err := e.Verify(proofContext(t, holder, raw), raw, token.VerifyOptions{}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected checker to be called once, got %d", calls)
	}
}

func TestEnginePasetoRouting(t *testing.T) {
	cfg := testConfig()
	cfg.Services = []string{ServiceJWT, ServicePaseto}
	e := buildTestEngine(t, cfg)

	for _, alg := range []string{"v4.public", "v4.local"} {
		raw, err := e.Mint(context.Background(), token.Claims{"sub": "bob"}, token.MintOptions{Alg: alg})
		if err != nil {
			t.Fatalf("mint %s: %v", alg, err)
		}
		if !strings.HasPrefix(raw, alg+".") {
			t.Fatalf("expected %s token, got %q", alg, raw[:12])
		}
		claims, err := e.Verify(context.Background(), raw, token.VerifyOptions{})
		if err != nil {
			t.Fatalf("verify %s: %v", alg, err)
		}
		if claims["sub"] != "bob" {
			t.Fatalf("unexpected claims %v", claims)
		}
	}
}

func TestEngineJWKSAndSupports(t *testing.T) {
	cfg := testConfig()
	cfg.Services = []string{ServiceJWT, ServiceDPoP, ServicePaseto, ServiceSSH}
	e := buildTestEngine(t, cfg)

	set, err := e.JWKS(context.Background())
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	seen := map[string]bool{}
	for _, k := range set.Keys {
		if seen[k.KeyID] {
			t.Fatalf("duplicate kid %s", k.KeyID)
		}
		seen[k.KeyID] = true
		if !k.IsPublic() {
			t.Fatalf("private key %s published", k.KeyID)
		}
	}
	for _, kid := range []string{"default.1", "paseto.1"} {
		if !seen[kid] {
			t.Fatalf("missing %s in %v", kid, seen)
		}
	}
	if seen["local.1"] {
		t.Fatal("symmetric key published")
	}

	caps := e.Supports()
	formats := strings.Join(caps.Formats, ",")
	for _, f := range []string{token.FormatJWT, token.FormatPASETO, token.FormatSSHCert} {
		if !strings.Contains(formats, f) {
			t.Fatalf("missing format %s in %v", f, caps.Formats)
		}
	}
}

func TestEngineRejectionMetrics(t *testing.T) {
	e := buildTestEngine(t, testConfig())
	raw, err := e.Mint(context.Background(), token.Claims{"sub": "alice"}, token.MintOptions{Lifetime: time.Minute})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	tampered := raw[:len(raw)-4] + "AAAA"
	if _, err := e.Verify(context.Background(), tampered, token.VerifyOptions{}); token.KindOf(err) != token.KindCrypto {
		t.Fatalf("expected crypto failure, got %v", err)
	}

	if _, err := e.Verify(context.Background(), "not-a-token", token.VerifyOptions{}); token.KindOf(err) != token.KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricSignatureFailure] != 1 {
		t.Fatalf("expected 1 signature failure, got %d", snap.Counters[MetricSignatureFailure])
	}
	if snap.Counters[MetricVerifyFailure] != 2 {
		t.Fatalf("expected 2 verify failures, got %d", snap.Counters[MetricVerifyFailure])
	}
}

func TestEngineDefaultVerifyOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Verify = VerifyConfig{Issuer: "iss", Audience: []string{"aud"}, Leeway: 3 * time.Second}
	e := buildTestEngine(t, cfg)

	opts := e.DefaultVerifyOptions()
	if opts.Issuer != "iss" || len(opts.Audience) != 1 || opts.Leeway != 3*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts.Audience[0] = "changed"
	if e.DefaultVerifyOptions().Audience[0] != "aud" {
		t.Fatal("DefaultVerifyOptions shares its audience slice")
	}
}
