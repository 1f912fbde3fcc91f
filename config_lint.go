package goToken

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	// LintHigh marks settings under which bound tokens lose their binding or
	// proofs can be replayed.
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", int(s))
	}
}

// MarshalText renders the severity name.
func (s LintSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LintWarning is one finding of Config.Lint. Lint findings are advisory;
// Validate decides whether a config is usable.
type LintWarning struct {
	Code     string       `json:"code"`
	Severity LintSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// BySeverity returns the findings at or above threshold.
func (r LintResult) BySeverity(threshold LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= threshold {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing the findings at or above threshold, or nil.
func (r LintResult) AsError(threshold LintSeverity) error {
	hits := r.BySeverity(threshold)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but weaken the guarantees of the
// enabled services.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	bound := c.has(ServiceDPoP) || c.has(ServiceMTLS)
	if bound && !c.Router.StrictFallback {
		add("blanket_fallback", LintHigh,
			"router.strict_fallback is off: a bound token rejected for its binding is retried as a plain bearer token")
	}

	if c.Verify.Leeway > time.Minute {
		add("leeway_large", LintWarn, "verify.leeway is %s (recommended <= 1m)", c.Verify.Leeway)
	}
	if c.JWT.DefaultLifetime > 15*time.Minute {
		add("jwt_lifetime_long", LintWarn, "jwt.default_lifetime is %s (recommended <= 15m)", c.JWT.DefaultLifetime)
	}
	if strings.HasPrefix(strings.ToUpper(c.JWT.DefaultAlg), "HS") {
		add("signing_hmac", LintWarn, "jwt.default_alg %s is symmetric; verifiers cannot use the published key set", c.JWT.DefaultAlg)
	}

	if c.has(ServiceDPoP) {
		switch {
		case !c.DPoP.EnforceProofs:
			add("dpop_not_enforced", LintHigh, "dpop.enforce_proofs is off: DPoP-bound tokens verify without a proof")
		case c.DPoP.Replay.Backend == ReplayNone || c.DPoP.Replay.Backend == "":
			add("replay_disabled", LintHigh, "dpop.replay.backend is none: proofs can be replayed within max_proof_age")
		case c.DPoP.Replay.Backend == ReplayMemory:
			add("replay_memory", LintInfo, "the memory replay cache is per process; use redis when running several instances")
		}
		if c.DPoP.MaxProofAge > 5*time.Minute {
			add("proof_age_long", LintWarn, "dpop.max_proof_age is %s (recommended <= 5m)", c.DPoP.MaxProofAge)
		}
	}
	if c.has(ServiceMTLS) && !c.MTLS.EnforceBinding {
		add("mtls_not_enforced", LintHigh, "mtls.enforce_binding is off: certificate-bound tokens verify without a certificate")
	}
	if c.has(ServicePaseto) && c.Paseto.DefaultLifetime > 15*time.Minute {
		add("paseto_lifetime_long", LintWarn, "paseto.default_lifetime is %s (recommended <= 15m)", c.Paseto.DefaultLifetime)
	}
	if c.has(ServiceSSH) && c.SSH.DefaultLifetime > 24*time.Hour {
		add("ssh_lifetime_long", LintWarn, "ssh.default_lifetime is %s (recommended <= 24h)", c.SSH.DefaultLifetime)
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are disabled")
	} else if c.Audit.DropIfFull {
		add("audit_drop_if_full", LintInfo, "audit events are dropped when the buffer is full")
	}
	return ws
}
