package token

import (
	"errors"
	"strings"

	gjwt "github.com/golang-jwt/jwt/v5"
)

// IsCompact reports whether raw has the three-segment shape of a JWS.
func IsCompact(raw string) bool {
	return strings.Count(raw, ".") == 2
}

var peekParser = gjwt.NewParser()

// PeekCompact decodes the header and payload of a compact JWS without
// verifying anything. It is only suitable for routing hints. An alg the
// signing library does not know still peeks; its service rejects it later.
func PeekCompact(raw string) (header map[string]any, payload Claims, ok bool) {
	body := gjwt.MapClaims{}
	tok, _, err := peekParser.ParseUnverified(raw, body)
	if err != nil && !errors.Is(err, gjwt.ErrTokenUnverifiable) {
		return nil, nil, false
	}
	if tok == nil || tok.Header == nil || body == nil {
		return nil, nil, false
	}
	return tok.Header, Claims(body), true
}
