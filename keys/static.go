package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-jose/go-jose/v4"
)

// StaticProvider is an in-memory Provider. Keys are added at start-up or
// rotated in by appending a new version; lookups without a version return
// the latest one.
type StaticProvider struct {
	// mu and keys are shared with views from WithoutSecrets.
	mu   *sync.RWMutex
	keys map[string][]KeyRef
	// Exportable controls whether GetKey returns secret material when asked.
	exportable bool
}

// NewStaticProvider returns an empty provider that exports secrets on request.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{mu: new(sync.RWMutex), keys: make(map[string][]KeyRef), exportable: true}
}

// WithoutSecrets returns a public-only view sharing the same key table, so
// keys added or rotated through either provider are visible to both.
func (p *StaticProvider) WithoutSecrets() *StaticProvider {
	return &StaticProvider{mu: p.mu, keys: p.keys, exportable: false}
}

// Add stores ref under ref.Kid. A zero Version is assigned the next free one.
func (p *StaticProvider) Add(ref KeyRef) (KeyRef, error) {
	ref.Kid = strings.TrimSpace(ref.Kid)
	if ref.Kid == "" {
		return KeyRef{}, errors.New("key id is required")
	}
	if strings.ContainsAny(ref.Kid, ".") {
		return KeyRef{}, fmt.Errorf("key id %q must not contain '.'", ref.Kid)
	}
	if len(ref.Material) == 0 && len(ref.Public) == 0 {
		return KeyRef{}, ErrInvalidKey
	}
	if ref.Type == "" {
		t, err := detectType(ref)
		if err != nil {
			return KeyRef{}, err
		}
		ref.Type = t
	}
	if ref.Type != TypeSymmetric {
		if _, err := ref.PublicKey(); err != nil {
			return KeyRef{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	versions := p.keys[ref.Kid]
	if ref.Version <= 0 {
		ref.Version = len(versions) + 1
		if n := len(versions); n > 0 && versions[n-1].Version >= ref.Version {
			ref.Version = versions[n-1].Version + 1
		}
	}
	for _, v := range versions {
		if v.Version == ref.Version {
			return KeyRef{}, fmt.Errorf("key %s already exists", ref.ID())
		}
	}
	ref.Material = cloneBytes(ref.Material)
	ref.Public = cloneBytes(ref.Public)
	versions = append(versions, ref)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	p.keys[ref.Kid] = versions
	return ref, nil
}

// GetKey implements Provider.
func (p *StaticProvider) GetKey(ctx context.Context, kid string, version *int, includeSecret bool) (KeyRef, error) {
	if err := ctx.Err(); err != nil {
		return KeyRef{}, err
	}
	p.mu.RLock()
	versions := p.keys[kid]
	var (
		ref   KeyRef
		found bool
	)
	if version == nil {
		if n := len(versions); n > 0 {
			ref, found = versions[n-1], true
		}
	} else {
		for _, v := range versions {
			if v.Version == *version {
				ref, found = v, true
				break
			}
		}
	}
	p.mu.RUnlock()

	if !found {
		return KeyRef{}, ErrKeyNotFound
	}
	if includeSecret {
		if !p.exportable {
			return KeyRef{}, ErrSecretNotExportable
		}
		ref.Material = cloneBytes(ref.Material)
	} else {
		if ref.Type == TypeSymmetric {
			return KeyRef{}, ErrSecretNotExportable
		}
		if len(ref.Public) == 0 {
			if pub, err := ref.PublicKey(); err == nil {
				if der, err := x509.MarshalPKIXPublicKey(pub); err == nil {
					ref.Public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
				}
			}
		}
		ref.Material = nil
	}
	ref.Public = cloneBytes(ref.Public)
	return ref, nil
}

// JWKS implements Provider. Keys are ordered by kid, then version.
func (p *StaticProvider) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	if err := ctx.Err(); err != nil {
		return jose.JSONWebKeySet{}, err
	}
	snap := p.snapshot()
	kids := make([]string, 0, len(snap))
	for kid := range snap {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}
	for _, kid := range kids {
		for _, ref := range snap[kid] {
			if jwk, ok := PublicJWK(ref); ok {
				set.Keys = append(set.Keys, jwk)
			}
		}
	}
	return set, nil
}

// Versions returns the versions known for kid in ascending order.
func (p *StaticProvider) Versions(kid string) []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int, 0, len(p.keys[kid]))
	for _, v := range p.keys[kid] {
		out = append(out, v.Version)
	}
	return out
}

func (p *StaticProvider) snapshot() map[string][]KeyRef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]KeyRef, len(p.keys))
	for kid, versions := range p.keys {
		out[kid] = append([]KeyRef(nil), versions...)
	}
	return out
}

// Generate creates a fresh key of type t and adds it under kid.
// bits is the RSA modulus size, the EC curve size (256 or 384) or the
// symmetric key length in bytes; zero picks a sensible default.
func (p *StaticProvider) Generate(kid string, t Type, bits int) (KeyRef, error) {
	ref, err := GenerateKey(t, bits)
	if err != nil {
		return KeyRef{}, err
	}
	ref.Kid = kid
	return p.Add(ref)
}

// GenerateKey creates unnamed key material of type t.
func GenerateKey(t Type, bits int) (KeyRef, error) {
	switch t {
	case TypeSymmetric:
		if bits <= 0 {
			bits = 32
		}
		secret := make([]byte, bits)
		if _, err := rand.Read(secret); err != nil {
			return KeyRef{}, err
		}
		return KeyRef{Type: TypeSymmetric, Material: secret}, nil
	case TypeRSA:
		if bits <= 0 {
			bits = 2048
		}
		k, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return KeyRef{}, err
		}
		return fromSigner(TypeRSA, k)
	case TypeEC:
		curve := elliptic.P256()
		if bits == 384 {
			curve = elliptic.P384()
		}
		k, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return KeyRef{}, err
		}
		return fromSigner(TypeEC, k)
	case TypeEd25519:
		_, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyRef{}, err
		}
		return fromSigner(TypeEd25519, k)
	default:
		return KeyRef{}, fmt.Errorf("unsupported key type %q", t)
	}
}

func fromSigner(t Type, k crypto.Signer) (KeyRef, error) {
	priv, pub, err := EncodePEM(k)
	if err != nil {
		return KeyRef{}, err
	}
	return KeyRef{Type: t, Alg: DefaultAlgFor(k.Public()), Material: priv, Public: pub}, nil
}

// EncodePEM returns the PKCS#8 private and PKIX public PEM encodings of k.
func EncodePEM(k crypto.Signer) (priv, pub []byte, err error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return nil, nil, err
	}
	pubDER, err := x509.MarshalPKIXPublicKey(k.Public())
	if err != nil {
		return nil, nil, err
	}
	priv = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pub = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return priv, pub, nil
}

func detectType(ref KeyRef) (Type, error) {
	if len(ref.Public) > 0 {
		pub, err := ParsePublicKey(ref.Public)
		if err != nil {
			return "", err
		}
		t, _ := TypeOf(pub)
		return t, nil
	}
	if signer, err := ParsePrivateKey(ref.Material); err == nil {
		t, _ := TypeOf(signer)
		return t, nil
	}
	return TypeSymmetric, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
