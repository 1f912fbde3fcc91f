package router

import (
	"strings"

	"github.com/MrEthical07/goToken/token"
)

// SelectForMint returns the service Mint would use. decided is false when
// no rule matched and the first registered service was chosen.
//
// Rules, first match wins:
//  1. a "svc" header naming a service Kind
//  2. a "typ" header naming a supported format
//  3. a cnf.x5t#S256 claim selects a certificate-bound service
//  4. a cnf.jkt claim selects a DPoP-bound service
//  5. an SSH key algorithm selects an SSH certificate service
//  6. a known alg, preferring a plain JWT service
func (r *Router) SelectForMint(claims token.Claims, opts token.MintOptions) (svc token.Service, decided bool) {
	if name, ok := opts.Headers["svc"].(string); ok && name != "" {
		for _, s := range r.services {
			if strings.EqualFold(s.Kind(), name) {
				return s, true
			}
		}
	}
	if typ, ok := opts.Headers["typ"].(string); ok && typ != "" {
		if s := r.firstFormat(typ); s != nil {
			return s, true
		}
	}
	if s := r.byConfirmation(claims); s != nil {
		return s, true
	}
	alg := strings.TrimSpace(opts.Alg)
	if isSSHAlg(alg) {
		if s := r.firstFormat(token.FormatSSHCert); s != nil {
			return s, true
		}
	}
	if alg != "" {
		if candidates := r.algIndex[strings.ToUpper(alg)]; len(candidates) > 0 {
			return preferVariant(candidates, token.VariantPlain), true
		}
	}
	return r.services[0], false
}

// SelectForVerify returns the service Verify tries first, sniffing the token
// shape without checking any signature.
func (r *Router) SelectForVerify(raw string) (svc token.Service, decided bool) {
	trimmed := strings.TrimSpace(raw)

	if isSSHCertLine(trimmed) {
		if s := r.firstFormat(token.FormatSSHCert); s != nil {
			return s, true
		}
	}
	if strings.HasPrefix(trimmed, "v4.public.") || strings.HasPrefix(trimmed, "v4.local.") {
		if s := r.firstFormat(token.FormatPASETO); s != nil {
			return s, true
		}
	}
	if token.IsCompact(trimmed) {
		header, payload, ok := token.PeekCompact(trimmed)
		if ok {
			if s := r.byConfirmation(payload); s != nil {
				return s, true
			}
			if typ, ok := header["typ"].(string); ok && typ != "" {
				if s := r.firstFormat(typ); s != nil {
					return s, true
				}
			}
		}
		if candidates := r.formatIndex[token.FormatJWT]; len(candidates) > 0 {
			return preferVariant(candidates, token.VariantPlain), true
		}
	}
	return r.services[0], false
}

func (r *Router) firstFormat(format string) token.Service {
	if candidates := r.formatIndex[strings.ToUpper(format)]; len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

func (r *Router) byConfirmation(claims token.Claims) token.Service {
	if _, ok := claims.ConfirmationValue(token.CnfX5TS256); ok {
		if s := r.firstVariant(token.VariantCertBound); s != nil {
			return s
		}
	}
	if _, ok := claims.ConfirmationValue(token.CnfJKT); ok {
		if s := r.firstVariant(token.VariantDPoPBound); s != nil {
			return s
		}
	}
	return nil
}

func (r *Router) firstVariant(v token.Variant) token.Service {
	for _, s := range r.services {
		if s.Variant() == v {
			return s
		}
	}
	return nil
}

func preferVariant(candidates []token.Service, v token.Variant) token.Service {
	for _, s := range candidates {
		if s.Variant() == v {
			return s
		}
	}
	return candidates[0]
}

func isSSHAlg(alg string) bool {
	return strings.HasPrefix(alg, "ssh-") || strings.HasPrefix(alg, "ecdsa-sha2-")
}

func isSSHCertLine(s string) bool {
	if !isSSHAlg(s) {
		return false
	}
	first, _, _ := strings.Cut(s, " ")
	return strings.Contains(first, "-cert-")
}
