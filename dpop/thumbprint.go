package dpop

import (
	"crypto"
	"encoding/base64"
	"errors"

	"github.com/go-jose/go-jose/v4"
)

// ErrUnsupportedKey is returned for keys that have no RFC 7638 thumbprint.
var ErrUnsupportedKey = errors.New("dpop: unsupported key type")

// Thumbprint returns the base64url RFC 7638 SHA-256 thumbprint of pub.
// Private keys are reduced to their public half first.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	if signer, ok := pub.(crypto.Signer); ok {
		pub = signer.Public()
	}
	if jwk, ok := pub.(*jose.JSONWebKey); ok {
		pub = jwk.Key
	}
	jwk := jose.JSONWebKey{Key: pub}
	if !jwk.Valid() {
		return "", ErrUnsupportedKey
	}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", ErrUnsupportedKey
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
