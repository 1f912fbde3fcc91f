package token

import "time"

// ValidateClaims applies the temporal and identity checks every format shares.
//
// exp, nbf and iat are optional; when present they are checked against now
// with leeway on both sides. Issuer and audience are checked only when opts
// carries an expectation.
func ValidateClaims(claims Claims, now time.Time, opts VerifyOptions) error {
	leeway := opts.Leeway
	if leeway < 0 {
		leeway = 0
	}

	if claims.Has(ClaimExpiry) {
		exp, ok := claims.Time(ClaimExpiry)
		if !ok {
			return Malformed("InvalidExpiry")
		}
		if now.After(exp.Add(leeway)) {
			return ErrExpired
		}
	}
	if claims.Has(ClaimNotBefore) {
		nbf, ok := claims.Time(ClaimNotBefore)
		if !ok {
			return Malformed("InvalidNotBefore")
		}
		if now.Add(leeway).Before(nbf) {
			return ErrNotYetValid
		}
	}
	if claims.Has(ClaimIssuedAt) {
		iat, ok := claims.Time(ClaimIssuedAt)
		if !ok {
			return Malformed("InvalidIssuedAt")
		}
		if iat.After(now.Add(leeway)) {
			return ErrIssuedInFuture
		}
	}

	if opts.Issuer != "" {
		iss, _ := claims.String(ClaimIssuer)
		if iss != opts.Issuer {
			return ErrIssuerMismatch
		}
	}
	if len(opts.Audience) > 0 && !audienceMatches(claims.Audience(), opts.Audience) {
		return ErrAudienceMismatch
	}
	return nil
}

func audienceMatches(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ApplyRegistered writes the identity claims carried by opts into claims.
// When override is false existing values win.
func ApplyRegistered(claims Claims, opts MintOptions, override bool) {
	set := func(name string, v any) {
		if override || !claims.Has(name) {
			claims[name] = v
		}
	}
	if opts.Issuer != "" {
		set(ClaimIssuer, opts.Issuer)
	}
	if opts.Subject != "" {
		set(ClaimSubject, opts.Subject)
	}
	if len(opts.Audience) > 0 {
		set(ClaimAudience, AudienceValue(opts.Audience))
	}
	if opts.Scope != "" {
		set(ClaimScope, opts.Scope)
	}
}
