package keys

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
)

func TestStaticProviderVersionsAndLatest(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	first, err := p.Generate("signing", TypeEd25519, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := p.Generate("signing", TypeEd25519, 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first.Version != 1 || second.Version != 2 {
		t.Fatalf("unexpected versions %d, %d", first.Version, second.Version)
	}

	latest, err := p.GetKey(ctx, "signing", nil, true)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.ID() != "signing.2" {
		t.Fatalf("expected signing.2, got %s", latest.ID())
	}

	v := 1
	old, err := p.GetKey(ctx, "signing", &v, false)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if old.Material != nil {
		t.Fatal("expected secret material to be withheld")
	}
	pub, err := old.PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if _, ok := pub.(ed25519.PublicKey); !ok {
		t.Fatalf("expected ed25519 public key, got %T", pub)
	}

	if _, err := p.GetKey(ctx, "missing", nil, false); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestStaticProviderSymmetricSecrets(t *testing.T) {
	p := NewStaticProvider()
	if _, err := p.Add(KeyRef{Kid: "hmac", Type: TypeSymmetric, Material: []byte("0123456789abcdef0123456789abcdef")}); err != nil {
		t.Fatalf("add: %v", err)
	}
	ctx := context.Background()

	if _, err := p.GetKey(ctx, "hmac", nil, false); !errors.Is(err, ErrSecretNotExportable) {
		t.Fatalf("expected symmetric key without secret to be refused, got %v", err)
	}
	ref, err := p.GetKey(ctx, "hmac", nil, true)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	secret, err := ref.Secret()
	if err != nil || len(secret) != 32 {
		t.Fatalf("unexpected secret %d bytes, err %v", len(secret), err)
	}

	public := p.WithoutSecrets()
	if _, err := public.GetKey(ctx, "hmac", nil, true); !errors.Is(err, ErrSecretNotExportable) {
		t.Fatalf("expected public view to withhold secrets, got %v", err)
	}

	rotated, err := p.Generate("signing", TypeEC, 256)
	if err != nil {
		t.Fatalf("generate after view: %v", err)
	}
	got, err := public.GetKey(ctx, "signing", nil, false)
	if err != nil {
		t.Fatalf("expected view to see keys added later, got %v", err)
	}
	if got.ID() != rotated.ID() {
		t.Fatalf("expected %s through the view, got %s", rotated.ID(), got.ID())
	}
}

func TestStaticProviderJWKSSkipsSymmetric(t *testing.T) {
	p := NewStaticProvider()
	for _, tc := range []struct {
		kid string
		typ Type
	}{{"b-rsa", TypeRSA}, {"a-ec", TypeEC}, {"c-hmac", TypeSymmetric}} {
		if _, err := p.Generate(tc.kid, tc.typ, 0); err != nil {
			t.Fatalf("generate %s: %v", tc.kid, err)
		}
	}

	set, err := p.JWKS(context.Background())
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	if len(set.Keys) != 2 {
		t.Fatalf("expected 2 public keys, got %d", len(set.Keys))
	}
	if set.Keys[0].KeyID != "a-ec.1" || set.Keys[0].Algorithm != "ES256" {
		t.Fatalf("unexpected first key %s/%s", set.Keys[0].KeyID, set.Keys[0].Algorithm)
	}
	if set.Keys[1].KeyID != "b-rsa.1" || set.Keys[1].Algorithm != "RS256" {
		t.Fatalf("unexpected second key %s/%s", set.Keys[1].KeyID, set.Keys[1].Algorithm)
	}
	for _, k := range set.Keys {
		if !k.IsPublic() {
			t.Fatalf("key %s is not public", k.KeyID)
		}
	}
}

func TestParseKid(t *testing.T) {
	cases := []struct {
		in      string
		kid     string
		version int
	}{
		{"signing.3", "signing", 3},
		{"signing", "signing", 0},
		{"a.b", "a.b", 0},
		{"svc.0", "svc.0", 0},
		{".4", ".4", 0},
	}
	for _, tc := range cases {
		kid, v := ParseKid(tc.in)
		got := 0
		if v != nil {
			got = *v
		}
		if kid != tc.kid || got != tc.version {
			t.Fatalf("ParseKid(%q) = %q, %d; want %q, %d", tc.in, kid, got, tc.kid, tc.version)
		}
	}
	if FormatKid("k", 2) != "k.2" || FormatKid("k", 0) != "k" {
		t.Fatal("unexpected FormatKid output")
	}
}

func TestAddRejectsDottedKid(t *testing.T) {
	p := NewStaticProvider()
	if _, err := p.Add(KeyRef{Kid: "a.b", Type: TypeSymmetric, Material: []byte("x")}); err == nil {
		t.Fatal("expected dotted kid to be rejected")
	}
}
