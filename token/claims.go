package token

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Reserved claim names.
const (
	ClaimIssuer    = "iss"
	ClaimSubject   = "sub"
	ClaimAudience  = "aud"
	ClaimScope     = "scope"
	ClaimIssuedAt  = "iat"
	ClaimNotBefore = "nbf"
	ClaimExpiry    = "exp"
	ClaimConfirm   = "cnf"

	// CnfJKT is the DPoP JWK thumbprint confirmation member.
	CnfJKT = "jkt"
	// CnfX5TS256 is the mTLS certificate thumbprint confirmation member.
	CnfX5TS256 = "x5t#S256"
)

// Claims is a token payload keyed by claim name.
type Claims map[string]any

// Clone returns a shallow copy; nested cnf maps are copied as well.
func (c Claims) Clone() Claims {
	out := make(Claims, len(c)+6)
	for k, v := range c {
		if k == ClaimConfirm {
			if m, ok := v.(map[string]any); ok {
				cp := make(map[string]any, len(m))
				for mk, mv := range m {
					cp[mk] = mv
				}
				out[k] = cp
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Has reports whether name is present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// String returns the claim as a string when it is one.
func (c Claims) String(name string) (string, bool) {
	s, ok := c[name].(string)
	return s, ok
}

// Confirmation returns the cnf member when it is a JSON object.
func (c Claims) Confirmation() (map[string]any, bool) {
	switch v := c[ClaimConfirm].(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// ConfirmationValue returns cnf[member] as a non-empty string.
func (c Claims) ConfirmationValue(member string) (string, bool) {
	cnf, ok := c.Confirmation()
	if !ok {
		return "", false
	}
	s, ok := cnf[member].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Audience returns aud as a list regardless of its string or array encoding.
func (c Claims) Audience() []string {
	switch v := c[ClaimAudience].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Time decodes a temporal claim. NumericDate values (any JSON number) and
// RFC 3339 strings are both accepted.
func (c Claims) Time(name string) (time.Time, bool) {
	v, ok := c[name]
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(v)
}

// ParseTime converts a NumericDate or RFC 3339 claim value to a time.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case int:
		return time.Unix(int64(t), 0), true
	case int64:
		return time.Unix(t, 0), true
	case uint64:
		if t > math.MaxInt64 {
			return time.Time{}, false
		}
		return time.Unix(int64(t), 0), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return ParseTime(f)
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if i, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Unix(i, 0), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// AudienceValue encodes an audience list the way JWTs conventionally do:
// a bare string for one entry, an array otherwise.
func AudienceValue(aud []string) any {
	if len(aud) == 1 {
		return aud[0]
	}
	out := make([]string, len(aud))
	copy(out, aud)
	return out
}
