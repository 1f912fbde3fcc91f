package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"strconv"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

var (
	// ErrKeyNotFound is returned when no key matches the kid/version.
	ErrKeyNotFound = errors.New("key not found")
	// ErrSecretNotExportable is returned when secret material was requested but withheld.
	ErrSecretNotExportable = errors.New("key secret not exportable")
	// ErrInvalidKey is returned for material that does not decode as the declared type.
	ErrInvalidKey = errors.New("invalid key material")
)

// DefaultKid is the key id used when a mint call names none.
const DefaultKid = "default"

// Type is the key family of a KeyRef.
type Type string

const (
	TypeSymmetric Type = "symmetric"
	TypeRSA       Type = "rsa"
	TypeEC        Type = "ec"
	TypeEd25519   Type = "ed25519"
)

// KeyRef is one version of a named key.
//
// Material holds the secret bytes for symmetric keys, or the private key
// (PEM, or the raw 64-byte form for Ed25519) for asymmetric keys. Public holds
// the PKIX PEM (or raw 32-byte Ed25519) public key and is empty for symmetric
// keys. Material is nil when the provider was asked not to include secrets.
type KeyRef struct {
	Kid      string
	Version  int
	Type     Type
	Alg      string
	Material []byte
	Public   []byte
}

// ID returns the versioned identifier "<kid>.<version>" carried in token headers.
func (r KeyRef) ID() string {
	return FormatKid(r.Kid, r.Version)
}

// Signer decodes Material as an asymmetric private key.
func (r KeyRef) Signer() (crypto.Signer, error) {
	if len(r.Material) == 0 {
		return nil, ErrSecretNotExportable
	}
	return ParsePrivateKey(r.Material)
}

// PublicKey decodes Public, falling back to the public half of Material.
func (r KeyRef) PublicKey() (crypto.PublicKey, error) {
	if len(r.Public) > 0 {
		return ParsePublicKey(r.Public)
	}
	signer, err := r.Signer()
	if err != nil {
		return nil, err
	}
	return signer.Public(), nil
}

// Secret returns the symmetric key bytes.
func (r KeyRef) Secret() ([]byte, error) {
	if r.Type != TypeSymmetric {
		return nil, ErrInvalidKey
	}
	if len(r.Material) == 0 {
		return nil, ErrSecretNotExportable
	}
	out := make([]byte, len(r.Material))
	copy(out, r.Material)
	return out, nil
}

// Provider resolves key material. Implementations must be safe for
// concurrent use and return consistent data for concurrent lookups.
type Provider interface {
	// GetKey resolves kid at version, or the latest version when version is nil.
	GetKey(ctx context.Context, kid string, version *int, includeSecret bool) (KeyRef, error)
	// JWKS returns the public key set.
	JWKS(ctx context.Context) (jose.JSONWebKeySet, error)
}

// FormatKid joins a key id and version as "<kid>.<version>".
func FormatKid(kid string, version int) string {
	if version <= 0 {
		return kid
	}
	return kid + "." + strconv.Itoa(version)
}

// ParseKid splits "<kid>.<version>". A kid without a numeric suffix yields a
// nil version.
func ParseKid(s string) (string, *int) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return s, nil
	}
	v, err := strconv.Atoi(s[i+1:])
	if err != nil || v <= 0 {
		return s, nil
	}
	return s[:i], &v
}

// PublicJWK builds the public JSON Web Key of ref. Symmetric keys have none.
func PublicJWK(ref KeyRef) (jose.JSONWebKey, bool) {
	if ref.Type == TypeSymmetric {
		return jose.JSONWebKey{}, false
	}
	pub, err := ref.PublicKey()
	if err != nil {
		return jose.JSONWebKey{}, false
	}
	alg := ref.Alg
	if alg == "" {
		alg = DefaultAlgFor(pub)
	}
	return jose.JSONWebKey{
		Key:       pub,
		KeyID:     ref.ID(),
		Algorithm: alg,
		Use:       "sig",
	}, true
}

// DefaultAlgFor returns the JWS algorithm conventionally used with pub.
func DefaultAlgFor(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve != nil && k.Curve.Params().BitSize == 384 {
			return "ES384"
		}
		return "ES256"
	case ed25519.PublicKey:
		return "EdDSA"
	default:
		return ""
	}
}
