package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

const (
	benchMethod = "GET"
	benchURI    = "https://bench.example/resource"
)

type benchParams struct {
	ops         int
	concurrency int
	replay      string
}

func newBenchCmd(a *app) *cobra.Command {
	var p benchParams
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure mint and verify throughput with generated keys",
		Long: `Bench builds an engine over freshly generated in-memory keys and runs three
phases: plain mint, plain verify and DPoP verify with a fresh proof per
request. With --replay redis the proof cache lives in Redis: --redis-addr
when set, otherwise an embedded miniredis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.ops <= 0 || p.concurrency <= 0 {
				return errors.New("ops and concurrency must be > 0")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return a.runBench(ctx, p)
		},
	}
	cmd.Flags().IntVar(&p.ops, "ops", 20000, "Operations per phase")
	cmd.Flags().IntVar(&p.concurrency, "concurrency", 64, "Concurrent workers")
	cmd.Flags().StringVar(&p.replay, "replay", goToken.ReplayMemory, "Replay backend (memory, redis)")
	return cmd
}

func (a *app) runBench(ctx context.Context, p benchParams) error {
	provider := keys.NewStaticProvider()
	if _, err := provider.Generate(keys.DefaultKid, keys.TypeEC, 0); err != nil {
		return err
	}

	cfg := goToken.DefaultConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.DPoP.Replay.Backend = p.replay
	b := goToken.New().WithConfig(cfg).WithKeyProvider(provider).WithLogger(a.log)

	if p.replay == goToken.ReplayRedis {
		client, cleanup, err := a.benchRedis()
		if err != nil {
			return err
		}
		defer cleanup()
		b.WithRedis(client)
	}

	e, err := b.Build()
	if err != nil {
		return err
	}
	defer e.Close()

	_, holder, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	plain, err := e.Mint(ctx, token.Claims{"sub": "bench"}, token.MintOptions{})
	if err != nil {
		return err
	}
	bound, err := e.Mint(dpop.WithHolderKey(ctx, holder.Public()), token.Claims{"sub": "bench"},
		token.MintOptions{Headers: map[string]any{"svc": goToken.ServiceDPoP}})
	if err != nil {
		return err
	}

	phases := []struct {
		name string
		op   func(context.Context) error
	}{
		{"mint", func(ctx context.Context) error {
			_, err := e.Mint(ctx, token.Claims{"sub": "bench"}, token.MintOptions{})
			return err
		}},
		{"verify", func(ctx context.Context) error {
			_, err := e.Verify(ctx, plain, token.VerifyOptions{})
			return err
		}},
		{"verify-dpop", func(ctx context.Context) error {
			proof, err := dpop.NewProof(holder, benchMethod, benchURI, dpop.ProofOptions{AccessToken: bound})
			if err != nil {
				return err
			}
			pctx := token.WithProofContext(ctx, token.ProofContext{Proof: proof, HTM: benchMethod, HTU: benchURI})
			_, err = e.Verify(pctx, bound, token.VerifyOptions{})
			return err
		}},
	}

	a.log.Info().Int("ops", p.ops).Int("concurrency", p.concurrency).Str("replay", p.replay).Msg("starting benchmark")
	for _, ph := range phases {
		s, err := runPhase(ctx, p, ph.op)
		if err != nil {
			return err
		}
		a.printStats(ph.name, s)
	}
	return nil
}

func (a *app) benchRedis() (redis.UniversalClient, func(), error) {
	addr := a.v.GetString(redisAddrKey)
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		a.log.Info().Str("addr", addr).Msg("using redis")
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	a.log.Info().Str("addr", mr.Addr()).Msg("using miniredis")
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// runPhase spreads p.ops calls of op over p.concurrency workers. Failed
// operations are counted, not returned; only cancellation stops the phase.
func runPhase(ctx context.Context, p benchParams, op func(context.Context) error) (phaseStats, error) {
	var (
		cursor    atomic.Int64
		failures  atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, p.ops)
	)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for w := 0; w < p.concurrency; w++ {
		g.Go(func() error {
			local := make([]time.Duration, 0, p.ops/p.concurrency+1)
			defer func() {
				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
			}()
			for cursor.Add(1) <= int64(p.ops) {
				if err := gctx.Err(); err != nil {
					return err
				}
				t0 := time.Now()
				if err := op(gctx); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return phaseStats{}, err
	}
	return computeStats(time.Since(start), latencies, failures.Load()), nil
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func (a *app) printStats(name string, s phaseStats) {
	fmt.Fprintf(a.out, "%-12s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
