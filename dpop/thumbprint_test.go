package dpop

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
)

func TestThumbprintRFC7638Vector(t *testing.T) {
	n, err := base64.RawURLEncoding.DecodeString("0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw")
	if err != nil {
		t.Fatalf("decode modulus: %v", err)
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: 65537}

	got, err := Thumbprint(pub)
	if err != nil {
		t.Fatalf("thumbprint: %v", err)
	}
	if want := "NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs"; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestThumbprintPrivateKeyUsesPublicHalf(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	a, err := Thumbprint(pub)
	if err != nil {
		t.Fatalf("thumbprint pub: %v", err)
	}
	b, err := Thumbprint(priv)
	if err != nil {
		t.Fatalf("thumbprint priv: %v", err)
	}
	if a != b {
		t.Fatalf("expected equal thumbprints, got %s and %s", a, b)
	}
	if _, err := Thumbprint("not a key"); err == nil {
		t.Fatal("expected unsupported key error")
	}
}

func TestNormalizeURI(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "https://Example.COM/a/B?x=1#f", want: "https://example.com/a/B"},
		{in: "HTTP://example.com:80", want: "http://example.com/"},
		{in: "https://example.com:8443/p", want: "https://example.com:8443/p"},
		{in: "https://[::1]:443/p", want: "https://[::1]/p"},
		{in: "/relative", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizeURI(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeURI(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizeURI(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}
