package goToken

import (
	"strings"
	"testing"
	"time"
)

func TestLintDefaultConfigHasNoHighFindings(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Lint().AsError(LintHigh); err != nil {
		t.Fatalf("default config should not have HIGH findings: %v", err)
	}
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "replay_memory") || !containsCode(codes, "audit_disabled") {
		t.Fatalf("expected informational findings, got %v", codes)
	}
}

func TestLintHighSecurityConfigOnlyInfo(t *testing.T) {
	cfg := HighSecurityConfig()
	if ws := cfg.Lint().BySeverity(LintWarn); len(ws) != 0 {
		t.Fatalf("HighSecurityConfig should only have INFO findings, got %v", ws.Codes())
	}
}

func TestLintFindings(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		code     string
		severity LintSeverity
	}{
		{"blanket fallback", func(c *Config) { c.Router.StrictFallback = false }, "blanket_fallback", LintHigh},
		{"large leeway", func(c *Config) { c.Verify.Leeway = 90 * time.Second }, "leeway_large", LintWarn},
		{"long jwt lifetime", func(c *Config) { c.JWT.DefaultLifetime = time.Hour }, "jwt_lifetime_long", LintWarn},
		{"hmac", func(c *Config) { c.JWT.DefaultAlg = "hs256" }, "signing_hmac", LintWarn},
		{"dpop not enforced", func(c *Config) { c.DPoP.EnforceProofs = false }, "dpop_not_enforced", LintHigh},
		{"replay disabled", func(c *Config) { c.DPoP.Replay.Backend = ReplayNone }, "replay_disabled", LintHigh},
		{"proof age", func(c *Config) { c.DPoP.MaxProofAge = 10 * time.Minute }, "proof_age_long", LintWarn},
		{"mtls not enforced", func(c *Config) {
			c.Services = append(c.Services, ServiceMTLS)
			c.MTLS.EnforceBinding = false
		}, "mtls_not_enforced", LintHigh},
		{"paseto lifetime", func(c *Config) {
			c.Services = append(c.Services, ServicePaseto)
			c.Paseto.DefaultLifetime = time.Hour
		}, "paseto_lifetime_long", LintWarn},
		{"ssh lifetime", func(c *Config) {
			c.Services = append(c.Services, ServiceSSH)
			c.SSH.DefaultLifetime = 48 * time.Hour
		}, "ssh_lifetime_long", LintWarn},
		{"audit drop", func(c *Config) { c.Audit.Enabled = true }, "audit_drop_if_full", LintInfo},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			var found bool
			for _, w := range cfg.Lint() {
				if w.Code != tc.code {
					continue
				}
				found = true
				if w.Severity != tc.severity {
					t.Fatalf("%s should be %s, got %s", tc.code, tc.severity, w.Severity)
				}
			}
			if !found {
				t.Fatalf("expected %s finding, got %v", tc.code, cfg.Lint().Codes())
			}
		})
	}
}

func TestLintIgnoresDisabledServices(t *testing.T) {
	cfg := defaultConfig()
	cfg.Services = []string{ServiceJWT}
	cfg.DPoP.EnforceProofs = false
	cfg.MTLS.EnforceBinding = false
	cfg.Router.StrictFallback = false
	if ws := cfg.Lint().BySeverity(LintHigh); len(ws) != 0 {
		t.Fatalf("findings for disabled services: %v", ws.Codes())
	}
}

func TestLintAsErrorListsFindings(t *testing.T) {
	cfg := defaultConfig()
	cfg.DPoP.EnforceProofs = false
	err := cfg.Lint().AsError(LintHigh)
	if err == nil {
		t.Fatal("expected AsError(LintHigh) to fail")
	}
	if got := err.Error(); !strings.Contains(got, "[HIGH] dpop_not_enforced") {
		t.Fatalf("unexpected error %q", got)
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
