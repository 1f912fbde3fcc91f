package sshcert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/MrEthical07/goToken/token"
)

type mintParams struct {
	subject         ssh.PublicKey
	certType        uint32
	principals      []string
	keyID           string
	serial          uint64
	validAfter      time.Time
	validBefore     time.Time
	criticalOptions map[string]string
	extensions      map[string]string
}

func parseMintParams(claims token.Claims) (mintParams, error) {
	var p mintParams

	subj, _ := claims.String(ClaimSubjectPub)
	if subj == "" {
		subj, _ = claims.String("subject_public")
	}
	if strings.TrimSpace(subj) == "" {
		return p, token.Malformed("MissingSubjectKey")
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(subj)))
	if err != nil {
		return p, token.Malformed("InvalidSubjectKey")
	}
	if _, isCert := pub.(*ssh.Certificate); isCert {
		return p, token.Malformed("InvalidSubjectKey")
	}
	p.subject = pub

	switch ct, _ := claims.String(ClaimCertType); ct {
	case "", "user":
		p.certType = ssh.UserCert
	case "host":
		p.certType = ssh.HostCert
	default:
		return p, token.Malformed("InvalidCertType")
	}

	p.principals = stringList(claims[ClaimPrincipals])
	if len(p.principals) == 0 {
		return p, token.Malformed("MissingPrincipals")
	}

	p.keyID, _ = claims.String(ClaimKeyID)
	if p.keyID == "" {
		p.keyID, _ = claims.String("kid")
	}
	if p.keyID == "" {
		p.keyID = "ssh-cert"
	}

	if v, ok := claims[ClaimSerial]; ok {
		serial, ok := uintValue(v)
		if !ok {
			return p, token.Malformed("InvalidSerial")
		}
		p.serial = serial
	}
	if claims.Has(ClaimValidAfter) && claims.Has(ClaimValidBefore) {
		va, ok1 := claims.Time(ClaimValidAfter)
		vb, ok2 := claims.Time(ClaimValidBefore)
		if !ok1 || !ok2 || !vb.After(va) || va.Unix() < 0 {
			return p, token.Malformed("InvalidValidity")
		}
		p.validAfter, p.validBefore = va, vb
	}

	p.criticalOptions = stringMap(claims[ClaimCriticalOptions])
	p.extensions = stringMap(claims[ClaimExtensions])
	return p, nil
}

func uintValue(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	case float64:
		return uint64(n), n >= 0 && n == math.Trunc(n)
	case json.Number:
		u, err := strconv.ParseUint(n.String(), 10, 64)
		return u, err == nil
	case string:
		u, err := strconv.ParseUint(n, 10, 64)
		return u, err == nil
	default:
		return 0, false
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	default:
		return nil
	}
}

// stringMap accepts option maps whose values are strings or null; null
// becomes the empty value OpenSSH uses for flag options.
func stringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]any:
		for k, val := range m {
			s, _ := val.(string)
			out[k] = s
		}
	}
	return out
}
