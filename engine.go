package goToken

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/replay"
	"github.com/MrEthical07/goToken/router"
	"github.com/MrEthical07/goToken/token"
)

// Engine mints and verifies tokens through the configured services.
//
// Engine instances are built by Builder and are safe for concurrent use.
type Engine struct {
	config   Config
	keys     keys.Provider
	router   *router.Router
	services map[string]token.Service
	replay   dpop.ReplayChecker
	audit    *auditDispatcher
	metrics  *Metrics
	log      zerolog.Logger

	stop      chan struct{}
	sweepWG   sync.WaitGroup
	closeOnce sync.Once
}

// Mint issues a token with the service the router selects for claims and
// opts. claims is not modified.
func (e *Engine) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	if e == nil || e.router == nil {
		return "", ErrEngineNotReady
	}
	start := time.Now()
	svc, _ := e.router.SelectForMint(claims, opts)

	raw, err := svc.Mint(ctx, claims, opts)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricMintLatency, time.Since(start))
	}

	subject := opts.Subject
	if subject == "" {
		subject, _ = claims.String(token.ClaimSubject)
	}
	if err != nil {
		e.metrics.Inc(MetricMintFailure)
		e.logFailure(ctx, "mint", svc, err)
		e.emitAudit(ctx, auditEventTokenMintFailed, svc, subject, opts.Issuer, err, nil)
		return "", err
	}

	e.metrics.Inc(MetricMintSuccess)
	e.emitAudit(ctx, auditEventTokenMinted, svc, subject, opts.Issuer, nil, func() map[string]string {
		md := map[string]string{}
		if opts.Alg != "" {
			md["alg"] = opts.Alg
		}
		if opts.Kid != "" {
			md["kid"] = opts.Kid
		}
		return md
	})
	return raw, nil
}

// Verify validates raw and returns its claims. Proof and certificate
// evidence for bound tokens is read from ctx (token.WithProofContext,
// token.WithClientCertificate).
func (e *Engine) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	if e == nil || e.router == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	claims, svc, err := e.router.VerifyService(ctx, raw, opts)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}

	if err != nil {
		e.metrics.Inc(MetricVerifyFailure)
		e.countRejection(err)
		e.logFailure(ctx, "verify", svc, err)
		e.emitAudit(ctx, rejectionEvent(err), svc, "", "", err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricVerifySuccess)
	subject, _ := claims.String(token.ClaimSubject)
	issuer, _ := claims.String(token.ClaimIssuer)
	e.emitAudit(ctx, auditEventTokenVerified, svc, subject, issuer, nil, nil)
	return claims, nil
}

// JWKS returns the merged public key set of every registered service.
func (e *Engine) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	if e == nil || e.router == nil {
		return jose.JSONWebKeySet{}, ErrEngineNotReady
	}
	return e.router.JWKS(ctx)
}

// Supports returns the combined capabilities of every registered service.
func (e *Engine) Supports() token.Capabilities {
	if e == nil || e.router == nil {
		return token.Capabilities{}
	}
	return e.router.Supports()
}

// Router exposes the underlying router, for callers that register the
// engine's services elsewhere.
func (e *Engine) Router() *router.Router {
	if e == nil {
		return nil
	}
	return e.router
}

// Service returns the service built for kind. The plain JWT service is
// available whenever a bound variant is configured, even if it is not
// registered with the router.
func (e *Engine) Service(kind string) (token.Service, bool) {
	if e == nil {
		return nil, false
	}
	svc, ok := e.services[kind]
	return svc, ok
}

// DefaultVerifyOptions returns the configured verification expectations.
func (e *Engine) DefaultVerifyOptions() token.VerifyOptions {
	if e == nil {
		return token.VerifyOptions{}
	}
	return token.VerifyOptions{
		Issuer:   e.config.Verify.Issuer,
		Audience: cloneStrings(e.config.Verify.Audience),
		Leeway:   e.config.Verify.Leeway,
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Close stops background work and flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.stopSweeper()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) countRejection(err error) {
	switch token.KindOf(err) {
	case token.KindBinding:
		e.metrics.Inc(MetricBindingFailure)
	case token.KindReplay:
		if !errors.Is(err, token.ErrReplayCheckUnavailable) {
			e.metrics.Inc(MetricReplayDetected)
		}
	case token.KindTemporal:
		e.metrics.Inc(MetricTemporalFailure)
	case token.KindCrypto:
		e.metrics.Inc(MetricSignatureFailure)
	}
}

func (e *Engine) logFailure(ctx context.Context, op string, svc token.Service, err error) {
	ev := e.log.Debug()
	if token.KindOf(err) == token.KindConfiguration || errors.Is(err, token.ErrReplayCheckUnavailable) {
		ev = e.log.Error()
	}
	if svc != nil {
		ev = ev.Str("service", svc.Kind())
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		ev = ev.Str("ip", ip)
	}
	if id := requestIDFromContext(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	ev.Err(err).Msgf("%s rejected", op)
}

// startSweeper evicts expired proof identifiers from the in-memory replay
// cache until Close.
func (e *Engine) startSweeper(mem *replay.MemoryChecker, every time.Duration) {
	if every <= 0 {
		every = replay.DefaultTTL
	}
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := mem.Sweep(); n > 0 {
					e.log.Debug().Int("evicted", n).Msg("replay cache swept")
				}
			case <-e.stop:
				return
			}
		}
	}()
}

func (e *Engine) stopSweeper() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	e.sweepWG.Wait()
}

// engineObserver turns router events into metrics and log lines.
type engineObserver struct {
	e *Engine
}

func (o engineObserver) VerifyFallback(selected, accepted token.Service) {
	o.e.metrics.Inc(MetricVerifyFallback)
	o.e.log.Debug().
		Str("selected", selected.Kind()).
		Str("accepted", accepted.Kind()).
		Msg("token accepted by fallback service")
}

func (o engineObserver) JWKSBackendError(svc token.Service, err error) {
	o.e.metrics.Inc(MetricJWKSBackendError)
	o.e.log.Warn().Str("service", svc.Kind()).Err(err).Msg("key set unavailable")
}
