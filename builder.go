package goToken

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/mtls"
	"github.com/MrEthical07/goToken/paseto"
	"github.com/MrEthical07/goToken/replay"
	"github.com/MrEthical07/goToken/router"
	"github.com/MrEthical07/goToken/sshcert"
	"github.com/MrEthical07/goToken/token"
)

// Builder collects the engine's collaborators. It is configured during
// initialization and can build exactly one Engine.
type Builder struct {
	config Config
	keys   keys.Provider
	redis  redis.UniversalClient
	replay dpop.ReplayChecker

	auditSink AuditSink
	logger    zerolog.Logger
	now       func() time.Time

	holderKey    dpop.HolderKeyFunc
	proofContext dpop.ProofContextFunc
	certificate  mtls.CertificateFunc

	built bool
}

// New returns a Builder holding DefaultConfig and a no-op logger.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeyProvider sets the key source shared by every service. Required.
func (b *Builder) WithKeyProvider(p keys.Provider) *Builder {
	b.keys = p
	return b
}

// WithRedis supplies the client used by the redis replay backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithReplayChecker overrides the configured replay backend.
func (b *Builder) WithReplayChecker(c dpop.ReplayChecker) *Builder {
	b.replay = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces time.Now in every service. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithHolderKeyFunc replaces the DPoP holder key accessor used at mint.
func (b *Builder) WithHolderKeyFunc(fn dpop.HolderKeyFunc) *Builder {
	b.holderKey = fn
	return b
}

// WithProofContextFunc replaces the DPoP proof evidence accessor used at verify.
func (b *Builder) WithProofContextFunc(fn dpop.ProofContextFunc) *Builder {
	b.proofContext = fn
	return b
}

// WithCertificateFunc replaces the client certificate accessor of the mTLS service.
func (b *Builder) WithCertificateFunc(fn mtls.CertificateFunc) *Builder {
	b.certificate = fn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every enabled service in
// Config.Services order and registers them with the router.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.keys == nil {
		return nil, ErrKeyProviderRequired
	}

	engine := &Engine{
		config:  cfg,
		keys:    b.keys,
		metrics: NewMetrics(cfg.Metrics),
		log:     b.logger.With().Str("component", "gotoken").Logger(),
		stop:    make(chan struct{}),
	}

	// -------- REPLAY --------
	checker, err := b.replayChecker(cfg, engine)
	if err != nil {
		return nil, err
	}
	engine.replay = checker

	// -------- SERVICES --------
	services, err := b.buildServices(cfg, checker)
	if err != nil {
		engine.stopSweeper()
		return nil, err
	}
	engine.services = services

	ordered := make([]token.Service, 0, len(cfg.Services))
	for _, name := range cfg.Services {
		ordered = append(ordered, services[name])
	}

	// -------- ROUTER --------
	opts := []router.Option{router.WithObserver(engineObserver{engine})}
	if cfg.Router.StrictFallback {
		opts = append(opts, router.WithStrictFallback())
	}
	r, err := router.New(ordered, opts...)
	if err != nil {
		engine.stopSweeper()
		return nil, err
	}
	engine.router = r

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, b.logger)

	b.built = true
	engine.log.Info().
		Strs("services", cfg.Services).
		Bool("strict_fallback", cfg.Router.StrictFallback).
		Bool("dpop_enforced", cfg.DPoP.EnforceProofs).
		Msg("token engine ready")

	return engine, nil
}

func (b *Builder) replayChecker(cfg Config, e *Engine) (dpop.ReplayChecker, error) {
	if b.replay != nil {
		return b.replay, nil
	}
	if !cfg.has(ServiceDPoP) {
		return nil, nil
	}

	rc := cfg.DPoP.Replay
	switch rc.Backend {
	case ReplayRedis:
		if b.redis == nil {
			return nil, ErrRedisRequired
		}
		return replay.NewRedisChecker(b.redis, rc.RedisPrefix, rc.TTL), nil
	case ReplayMemory:
		var opts []replay.MemoryOption
		if rc.MaxEntries > 0 {
			opts = append(opts, replay.WithMaxEntries(rc.MaxEntries))
		}
		if b.now != nil {
			opts = append(opts, replay.WithClock(b.now))
		}
		mem := replay.NewMemoryChecker(rc.TTL, opts...)
		e.startSweeper(mem, rc.TTL)
		return mem, nil
	default:
		return nil, nil
	}
}

func (b *Builder) buildServices(cfg Config, checker dpop.ReplayChecker) (map[string]token.Service, error) {
	out := make(map[string]token.Service, len(cfg.Services))

	var base *jwt.Service
	if cfg.has(ServiceJWT) || cfg.has(ServiceDPoP) || cfg.has(ServiceMTLS) {
		svc, err := jwt.New(jwt.Config{
			Keys:            b.keys,
			DefaultKid:      cfg.JWT.DefaultKid,
			DefaultAlg:      cfg.JWT.DefaultAlg,
			DefaultLifetime: cfg.JWT.DefaultLifetime,
			Algs:            cfg.JWT.Algs,
			Now:             b.now,
		})
		if err != nil {
			return nil, err
		}
		base = svc
		out[ServiceJWT] = base
	}

	if cfg.has(ServiceDPoP) {
		svc, err := dpop.New(dpop.Config{
			Base:          base,
			HolderKey:     b.holderKey,
			ProofContext:  b.proofContext,
			Replay:        checker,
			EnforceProofs: cfg.DPoP.EnforceProofs,
			MaxProofAge:   cfg.DPoP.MaxProofAge,
			MaxClockSkew:  cfg.Verify.Leeway,
			Now:           b.now,
		})
		if err != nil {
			return nil, err
		}
		out[ServiceDPoP] = svc
	}

	if cfg.has(ServiceMTLS) {
		svc, err := mtls.New(mtls.Config{
			Base:           base,
			Certificate:    b.certificate,
			EnforceBinding: cfg.MTLS.EnforceBinding,
		})
		if err != nil {
			return nil, err
		}
		out[ServiceMTLS] = svc
	}

	if cfg.has(ServicePaseto) {
		svc, err := paseto.New(paseto.Config{
			Keys:            b.keys,
			DefaultKid:      cfg.Paseto.DefaultKid,
			DefaultPurpose:  paseto.Purpose(strings.ToLower(cfg.Paseto.DefaultPurpose)),
			DefaultLifetime: cfg.Paseto.DefaultLifetime,
			LocalKeyIDs:     cfg.Paseto.LocalKeyIDs,
			Now:             b.now,
		})
		if err != nil {
			return nil, err
		}
		out[ServicePaseto] = svc
	}

	if cfg.has(ServiceSSH) {
		var version *int
		if cfg.SSH.CAVersion > 0 {
			version = token.Version(cfg.SSH.CAVersion)
		}
		svc, err := sshcert.New(sshcert.Config{
			Keys:            b.keys,
			CAKid:           cfg.SSH.CAKid,
			CAVersion:       version,
			DefaultLifetime: cfg.SSH.DefaultLifetime,
			Now:             b.now,
		})
		if err != nil {
			return nil, err
		}
		out[ServiceSSH] = svc
	}

	return out, nil
}
