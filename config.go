package goToken

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/MrEthical07/goToken/dpop"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/mtls"
	"github.com/MrEthical07/goToken/paseto"
	"github.com/MrEthical07/goToken/replay"
	"github.com/MrEthical07/goToken/sshcert"
)

// Service type names accepted in Config.Services. They match the Kind of the
// service they enable.
const (
	ServiceJWT    = jwt.Kind
	ServiceDPoP   = dpop.Kind
	ServiceMTLS   = mtls.Kind
	ServicePaseto = paseto.Kind
	ServiceSSH    = sshcert.Kind
)

// Replay backends for DPoP proof identifiers.
const (
	ReplayNone   = "none"
	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

// Config is the engine configuration. It is built once per process and passed
// to Builder.WithConfig; the engine keeps its own copy.
type Config struct {
	// Services lists the enabled services in registration order. Router
	// fallback and default selection follow this order.
	Services []string `yaml:"services"`

	Router  RouterConfig  `yaml:"router"`
	Verify  VerifyConfig  `yaml:"verify"`
	JWT     JWTConfig     `yaml:"jwt"`
	DPoP    DPoPConfig    `yaml:"dpop"`
	MTLS    MTLSConfig    `yaml:"mtls"`
	Paseto  PasetoConfig  `yaml:"paseto"`
	SSH     SSHConfig     `yaml:"ssh"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
ROUTER CONFIG
====================================
*/

// RouterConfig controls verify-time fallback.
type RouterConfig struct {
	// StrictFallback retries other services only when the token shape did
	// not identify a service.
	StrictFallback bool `yaml:"strict_fallback"`
}

// VerifyConfig holds the expectations applied by DefaultVerifyOptions.
type VerifyConfig struct {
	Issuer   string        `yaml:"issuer"`
	Audience []string      `yaml:"audience"`
	Leeway   time.Duration `yaml:"leeway"`
}

/*
====================================
SERVICE CONFIG
====================================
*/

// JWTConfig configures the plain JWT service, which also signs for the
// bound variants.
type JWTConfig struct {
	DefaultKid      string        `yaml:"default_kid"`
	DefaultAlg      string        `yaml:"default_alg"`
	DefaultLifetime time.Duration `yaml:"default_lifetime"`
	Algs            []string      `yaml:"algs"`
}

// DPoPConfig configures the DPoP-bound service.
type DPoPConfig struct {
	EnforceProofs bool          `yaml:"enforce_proofs"`
	MaxProofAge   time.Duration `yaml:"max_proof_age"`
	Replay        ReplayConfig  `yaml:"replay"`
}

// ReplayConfig selects where seen proof identifiers are recorded.
type ReplayConfig struct {
	Backend     string        `yaml:"backend"`
	TTL         time.Duration `yaml:"ttl"`
	RedisPrefix string        `yaml:"redis_prefix"`
	// MaxEntries caps the memory backend; zero uses replay.DefaultMaxEntries.
	MaxEntries int `yaml:"max_entries"`
}

type MTLSConfig struct {
	EnforceBinding bool `yaml:"enforce_binding"`
}

type PasetoConfig struct {
	DefaultKid      string        `yaml:"default_kid"`
	DefaultPurpose  string        `yaml:"default_purpose"`
	DefaultLifetime time.Duration `yaml:"default_lifetime"`
	LocalKeyIDs     []string      `yaml:"local_key_ids"`
}

type SSHConfig struct {
	CAKid string `yaml:"ca_kid"`
	// CAVersion pins the CA key version; zero uses the latest.
	CAVersion       int           `yaml:"ca_version"`
	DefaultLifetime time.Duration `yaml:"default_lifetime"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns a development configuration: plain and DPoP-bound
// JWTs with proofs enforced against an in-memory replay cache. Fallback is
// strict so a bound token missing its proof is not accepted as a bearer token
// by the plain service.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Services: []string{ServiceJWT, ServiceDPoP},
		Router: RouterConfig{
			StrictFallback: true,
		},
		Verify: VerifyConfig{
			Leeway: 30 * time.Second,
		},
		JWT: JWTConfig{
			DefaultLifetime: 15 * time.Minute,
		},
		DPoP: DPoPConfig{
			EnforceProofs: true,
			MaxProofAge:   dpop.DefaultMaxProofAge,
			Replay: ReplayConfig{
				Backend:     ReplayMemory,
				TTL:         replay.DefaultTTL,
				RedisPrefix: "gt",
				MaxEntries:  replay.DefaultMaxEntries,
			},
		},
		MTLS: MTLSConfig{
			EnforceBinding: true,
		},
		Paseto: PasetoConfig{
			DefaultPurpose:  string(paseto.Public),
			DefaultLifetime: 15 * time.Minute,
		},
		SSH: SSHConfig{
			DefaultLifetime: sshcert.DefaultLifetime,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// HighSecurityConfig returns a production preset: bound services are
// registered first, proofs are replay-checked in Redis, and every event is
// audited without dropping.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Services = []string{ServiceDPoP, ServiceMTLS, ServiceJWT}
	cfg.Verify.Leeway = 5 * time.Second
	cfg.JWT.DefaultLifetime = 5 * time.Minute
	cfg.DPoP.MaxProofAge = 30 * time.Second
	cfg.DPoP.Replay.Backend = ReplayRedis
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// LoadConfig reads a YAML configuration file. Fields missing from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration over DefaultConfig and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config file: %w", err)
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Services = cloneStrings(cfg.Services)
	out.Verify.Audience = cloneStrings(cfg.Verify.Audience)
	out.JWT.Algs = cloneStrings(cfg.JWT.Algs)
	out.Paseto.LocalKeyIDs = cloneStrings(cfg.Paseto.LocalKeyIDs)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func (c *Config) has(service string) bool {
	for _, s := range c.Services {
		if s == service {
			return true
		}
	}
	return false
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// Services
	if len(c.Services) == 0 {
		return errors.New("Services must list at least one service")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		switch s {
		case ServiceJWT, ServiceDPoP, ServiceMTLS, ServicePaseto, ServiceSSH:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownServiceType, s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("Services lists %q more than once", s)
		}
		seen[s] = struct{}{}
	}

	// Verify
	if c.Verify.Leeway < 0 {
		return errors.New("Verify Leeway must be >= 0")
	}

	// JWT
	if c.JWT.DefaultLifetime < 0 {
		return errors.New("JWT DefaultLifetime must be >= 0")
	}
	if strings.Contains(c.JWT.DefaultKid, ".") {
		return errors.New("JWT DefaultKid must not contain '.'")
	}

	// DPoP
	if c.has(ServiceDPoP) {
		if c.DPoP.MaxProofAge <= 0 {
			return errors.New("DPoP MaxProofAge must be > 0")
		}
		switch c.DPoP.Replay.Backend {
		case ReplayNone, "":
		case ReplayMemory, ReplayRedis:
			if c.DPoP.Replay.TTL < c.DPoP.MaxProofAge+c.Verify.Leeway {
				return errors.New("DPoP Replay TTL must be >= MaxProofAge + Verify Leeway")
			}
			if c.DPoP.Replay.MaxEntries < 0 {
				return errors.New("DPoP Replay MaxEntries must be >= 0")
			}
		default:
			return fmt.Errorf("DPoP Replay Backend %q is invalid", c.DPoP.Replay.Backend)
		}
		if c.DPoP.Replay.Backend == ReplayRedis && strings.TrimSpace(c.DPoP.Replay.RedisPrefix) == "" {
			return errors.New("DPoP Replay RedisPrefix is required for the redis backend")
		}
	}

	// PASETO
	if c.has(ServicePaseto) {
		switch paseto.Purpose(c.Paseto.DefaultPurpose) {
		case "", paseto.Public, paseto.Local:
		default:
			return fmt.Errorf("Paseto DefaultPurpose %q is invalid", c.Paseto.DefaultPurpose)
		}
		if c.Paseto.DefaultLifetime < 0 {
			return errors.New("Paseto DefaultLifetime must be >= 0")
		}
	}

	// SSH
	if c.has(ServiceSSH) {
		if strings.TrimSpace(c.SSH.CAKid) == "" {
			return errors.New("SSH CAKid is required when the ssh-cert service is enabled")
		}
		if c.SSH.CAVersion < 0 {
			return errors.New("SSH CAVersion must be >= 0")
		}
		if c.SSH.DefaultLifetime < 0 {
			return errors.New("SSH DefaultLifetime must be >= 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
