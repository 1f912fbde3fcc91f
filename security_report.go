package goToken

import "time"

// SecurityReport summarizes the effective security posture of an engine.
type SecurityReport struct {
	Services         []string
	StrictFallback   bool
	SigningAlgorithm string
	JWTLifetime      time.Duration
	Leeway           time.Duration
	DPoP             BindingReport
	MTLSEnforced     bool
	PasetoPurpose    string
	SSHCAKid         string
	AuditEnabled     bool
	MetricsEnabled   bool
	// Findings holds the Config.Lint results at LintWarn and above.
	Findings LintResult
}

// BindingReport describes DPoP proof handling.
type BindingReport struct {
	Enabled       bool
	Enforced      bool
	MaxProofAge   time.Duration
	ReplayBackend string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config

	alg := cfg.JWT.DefaultAlg
	if alg == "" {
		alg = "by key type"
	}
	report := SecurityReport{
		Services:         cloneStrings(cfg.Services),
		StrictFallback:   cfg.Router.StrictFallback,
		SigningAlgorithm: alg,
		JWTLifetime:      cfg.JWT.DefaultLifetime,
		Leeway:           cfg.Verify.Leeway,
		DPoP: BindingReport{
			Enabled:       cfg.has(ServiceDPoP),
			Enforced:      cfg.has(ServiceDPoP) && cfg.DPoP.EnforceProofs,
			MaxProofAge:   cfg.DPoP.MaxProofAge,
			ReplayBackend: cfg.DPoP.Replay.Backend,
		},
		MTLSEnforced:   cfg.has(ServiceMTLS) && cfg.MTLS.EnforceBinding,
		AuditEnabled:   e.audit != nil,
		MetricsEnabled: e.metrics.Enabled(),
		Findings:       cfg.Lint().BySeverity(LintWarn),
	}
	if cfg.has(ServicePaseto) {
		report.PasetoPurpose = cfg.Paseto.DefaultPurpose
	}
	if cfg.has(ServiceSSH) {
		report.SSHCAKid = cfg.SSH.CAKid
	}
	return report
}
