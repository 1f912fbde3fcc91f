package dpop

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/MrEthical07/goToken/token"
)

// ProofType is the typ header every DPoP proof carries.
const ProofType = "dpop+jwt"

const maxProofSize = 8 * 1024

// ProofAlgs are the only algorithms a proof may be signed with.
var ProofAlgs = []jose.SignatureAlgorithm{jose.RS256, jose.PS256, jose.ES256, jose.EdDSA}

type proof struct {
	key   *jose.JSONWebKey
	htm   string
	htu   string
	nonce string
	ath   string
	jti   string
	iat   time.Time
	hasAt bool
}

// parseProof decodes the proof, checks its typ and embedded key, and verifies
// its signature with that key.
func parseProof(raw string) (*proof, error) {
	if len(raw) > maxProofSize || !token.IsCompact(raw) {
		return nil, token.ErrMalformedProof
	}
	jws, err := jose.ParseSigned(raw, ProofAlgs)
	if err != nil || len(jws.Signatures) != 1 {
		return nil, token.ErrMalformedProof
	}
	hdr := jws.Signatures[0].Protected
	if typ, _ := hdr.ExtraHeaders[jose.HeaderType].(string); typ != ProofType {
		return nil, token.ErrMalformedProof
	}
	jwk := hdr.JSONWebKey
	if jwk == nil || !jwk.Valid() || !jwk.IsPublic() {
		return nil, token.ErrMalformedProof
	}
	switch jwk.Key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
	default:
		return nil, token.ErrMalformedProof
	}

	payload, err := jws.Verify(jwk.Key)
	if err != nil {
		return nil, token.ErrInvalidProofSignature
	}
	var body token.Claims
	if err := json.Unmarshal(payload, &body); err != nil || body == nil {
		return nil, token.ErrMalformedProof
	}

	p := &proof{key: jwk}
	p.htm, _ = body.String("htm")
	p.htu, _ = body.String("htu")
	p.nonce, _ = body.String("nonce")
	p.ath, _ = body.String("ath")
	p.jti, _ = body.String("jti")
	p.iat, p.hasAt = body.Time(token.ClaimIssuedAt)
	return p, nil
}

func (p *proof) checkBinding(jkt string) error {
	got, err := Thumbprint(p.key.Key)
	if err != nil {
		return token.ErrMalformedProof
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(jkt)) != 1 {
		return token.ErrBindingMismatch
	}
	return nil
}

func (p *proof) checkRequest(pc *token.ProofContext, accessToken string) error {
	if p.htm != pc.HTM {
		return token.ErrMethodMismatch
	}
	want, err := NormalizeURI(pc.HTU)
	if err != nil {
		return token.ErrURIMismatch
	}
	got, err := NormalizeURI(p.htu)
	if err != nil || got != want {
		return token.ErrURIMismatch
	}
	if p.ath != "" && p.ath != AccessTokenHash(accessToken) {
		return token.ErrBindingMismatch
	}
	if pc.Nonce != "" && subtle.ConstantTimeCompare([]byte(p.nonce), []byte(pc.Nonce)) != 1 {
		return token.ErrNonceMismatch
	}
	return nil
}

func (p *proof) checkFreshness(now time.Time, maxAge, leeway time.Duration) error {
	if !p.hasAt {
		return token.ErrStaleProof
	}
	if leeway < 0 {
		leeway = 0
	}
	// a proof exactly maxAge old is already stale
	if !p.iat.After(now.Add(-maxAge)) {
		return token.ErrStaleProof
	}
	if p.iat.After(now.Add(leeway)) {
		return token.ErrFutureProof
	}
	return nil
}

// AccessTokenHash is the ath value of a proof presented with accessToken.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
