package goToken

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

func newBenchmarkEngine(b *testing.B, cfg Config, configure ...func(*Builder)) *Engine {
	b.Helper()
	p := keys.NewStaticProvider()
	if _, err := p.Generate(keys.DefaultKid, keys.TypeEC, 0); err != nil {
		b.Fatalf("generate: %v", err)
	}
	if _, err := p.Generate("paseto", keys.TypeEd25519, 0); err != nil {
		b.Fatalf("generate: %v", err)
	}
	builder := New().WithConfig(cfg).WithKeyProvider(p)
	for _, fn := range configure {
		fn(builder)
	}
	e, err := builder.Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}
	b.Cleanup(e.Close)
	return e
}

func BenchmarkMintJWT(b *testing.B) {
	e := newBenchmarkEngine(b, DefaultConfig())
	ctx := context.Background()
	claims := token.Claims{"sub": "alice"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Mint(ctx, claims, token.MintOptions{}); err != nil {
			b.Fatalf("mint failed: %v", err)
		}
	}
}

func BenchmarkVerifyJWT(b *testing.B) {
	e := newBenchmarkEngine(b, DefaultConfig())
	ctx := context.Background()
	raw, err := e.Mint(ctx, token.Claims{"sub": "alice"}, token.MintOptions{})
	if err != nil {
		b.Fatalf("mint failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyPaseto(b *testing.B) {
	cfg := DefaultConfig()
	cfg.Services = []string{ServiceJWT, ServicePaseto}
	cfg.Paseto.DefaultKid = "paseto"
	e := newBenchmarkEngine(b, cfg)
	ctx := context.Background()
	raw, err := e.Mint(ctx, token.Claims{"sub": "alice"}, token.MintOptions{Alg: "v4.public"})
	if err != nil {
		b.Fatalf("mint failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func benchmarkVerifyDPoP(b *testing.B, cfg Config, configure ...func(*Builder)) {
	e := newBenchmarkEngine(b, cfg, configure...)
	_, holder, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("holder: %v", err)
	}
	raw, err := e.Mint(dpop.WithHolderKey(context.Background(), holder.Public()), token.Claims{"sub": "alice"},
		token.MintOptions{Headers: map[string]any{"svc": ServiceDPoP}})
	if err != nil {
		b.Fatalf("mint failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		proof, err := dpop.NewProof(holder, testMethod, testURI, dpop.ProofOptions{AccessToken: raw})
		if err != nil {
			b.Fatalf("proof: %v", err)
		}
		ctx := token.WithProofContext(context.Background(), token.ProofContext{Proof: proof, HTM: testMethod, HTU: testURI})
		b.StartTimer()
		if _, err := e.Verify(ctx, raw, token.VerifyOptions{}); err != nil {
			b.Fatalf("verify failed: %v", err)
		}
	}
}

func BenchmarkVerifyDPoPMemoryReplay(b *testing.B) {
	benchmarkVerifyDPoP(b, DefaultConfig())
}

func BenchmarkVerifyDPoPRedisReplay(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis: %v", err)
	}
	b.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.DPoP.Replay.Backend = ReplayRedis
	benchmarkVerifyDPoP(b, cfg, func(builder *Builder) { builder.WithRedis(rdb) })
}
