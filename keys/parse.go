package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/pem"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ParsePrivateKey decodes PEM (PKCS#1, PKCS#8 or SEC 1) or a raw 64-byte
// Ed25519 private key.
func ParsePrivateKey(material []byte) (crypto.Signer, error) {
	if len(material) == ed25519.PrivateKeySize && !isPEM(material) {
		return ed25519.PrivateKey(material), nil
	}
	if !isPEM(material) {
		return nil, ErrInvalidKey
	}
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(material); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPrivateKeyFromPEM(material); err == nil {
		return k, nil
	}
	if k, err := parseEdPrivateKey(material); err == nil {
		return k, nil
	}
	return nil, ErrInvalidKey
}

// ParsePublicKey decodes a PKIX/PKCS#1 PEM or raw 32-byte Ed25519 public key.
func ParsePublicKey(material []byte) (crypto.PublicKey, error) {
	if len(material) == ed25519.PublicKeySize && !isPEM(material) {
		return ed25519.PublicKey(material), nil
	}
	if !isPEM(material) {
		return nil, ErrInvalidKey
	}
	if k, err := jwt.ParseRSAPublicKeyFromPEM(material); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(material); err == nil {
		return k, nil
	}
	if k, err := parseEdPublicKey(material); err == nil {
		return k, nil
	}
	return nil, ErrInvalidKey
}

// TypeOf reports the key family of an asymmetric key.
func TypeOf(key any) (Type, bool) {
	switch key.(type) {
	case *rsa.PrivateKey, *rsa.PublicKey:
		return TypeRSA, true
	case *ecdsa.PrivateKey, *ecdsa.PublicKey:
		return TypeEC, true
	case ed25519.PrivateKey, ed25519.PublicKey:
		return TypeEd25519, true
	default:
		return "", false
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func isPEM(b []byte) bool {
	block, _ := pem.Decode(b)
	return block != nil
}
