package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// ProofOptions tunes NewProof. The zero value is a plain proof issued now.
type ProofOptions struct {
	// Nonce echoes a server-issued DPoP nonce.
	Nonce string
	// AccessToken, when set, is bound through the ath claim.
	AccessToken string
	IssuedAt    time.Time
	// JTI overrides the random proof identifier.
	JTI string
}

// NewProof creates a DPoP proof for an HTTP request, signed by key with its
// public half embedded as the jwk header.
func NewProof(key crypto.Signer, htm, htu string, opts ProofOptions) (string, error) {
	alg, err := proofAlg(key)
	if err != nil {
		return "", err
	}
	normalized, err := NormalizeURI(htu)
	if err != nil {
		return "", fmt.Errorf("normalize htu: %w", err)
	}

	signerOpts := (&jose.SignerOptions{EmbedJWK: true}).WithType(ProofType)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, signerOpts)
	if err != nil {
		return "", fmt.Errorf("create signer: %w", err)
	}

	iat := opts.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	jti := opts.JTI
	if jti == "" {
		jti = uuid.NewString()
	}
	body := map[string]any{
		"jti": jti,
		"htm": htm,
		"htu": normalized,
		"iat": iat.Unix(),
	}
	if opts.Nonce != "" {
		body["nonce"] = opts.Nonce
	}
	if opts.AccessToken != "" {
		body["ath"] = AccessTokenHash(opts.AccessToken)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign proof: %w", err)
	}
	return obj.CompactSerialize()
}

func proofAlg(key crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jose.RS256, nil
	case *ecdsa.PrivateKey:
		if k.Curve.Params().BitSize != 256 {
			return "", ErrUnsupportedKey
		}
		return jose.ES256, nil
	case ed25519.PrivateKey:
		return jose.EdDSA, nil
	default:
		return "", ErrUnsupportedKey
	}
}
