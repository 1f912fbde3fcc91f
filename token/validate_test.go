package token

import (
	"errors"
	"testing"
	"time"
)

func TestValidateClaimsLeewayOnExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	claims := Claims{ClaimExpiry: float64(now.Unix() - 1)}

	if err := ValidateClaims(claims, now, VerifyOptions{Leeway: 2 * time.Second}); err != nil {
		t.Fatalf("expected leeway to absorb expiry, got %v", err)
	}
	err := ValidateClaims(claims, now, VerifyOptions{})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if !errors.Is(err, ErrTemporalViolation) {
		t.Fatalf("expected temporal kind, got %v", err)
	}
}

func TestValidateClaimsNotBeforeAndFutureIssuedAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	nbf := Claims{ClaimNotBefore: now.Add(30 * time.Second).Format(time.RFC3339)}
	if err := ValidateClaims(nbf, now, VerifyOptions{}); !errors.Is(err, ErrNotYetValid) {
		t.Fatalf("expected ErrNotYetValid, got %v", err)
	}
	if err := ValidateClaims(nbf, now, VerifyOptions{Leeway: time.Minute}); err != nil {
		t.Fatalf("expected leeway to accept nbf, got %v", err)
	}

	iat := Claims{ClaimIssuedAt: int64(now.Unix() + 120)}
	if err := ValidateClaims(iat, now, VerifyOptions{Leeway: time.Minute}); !errors.Is(err, ErrIssuedInFuture) {
		t.Fatalf("expected ErrIssuedInFuture, got %v", err)
	}
}

func TestValidateClaimsIdentity(t *testing.T) {
	now := time.Now()
	claims := Claims{ClaimIssuer: "issuer-a", ClaimAudience: []any{"api", "admin"}}

	if err := ValidateClaims(claims, now, VerifyOptions{Issuer: "issuer-a", Audience: []string{"admin"}}); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := ValidateClaims(claims, now, VerifyOptions{Issuer: "issuer-b"}); !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("expected ErrIssuerMismatch, got %v", err)
	}
	if err := ValidateClaims(claims, now, VerifyOptions{Audience: []string{"billing"}}); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected ErrAudienceMismatch, got %v", err)
	}
	if err := ValidateClaims(Claims{}, now, VerifyOptions{Audience: []string{"api"}}); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("expected missing aud to mismatch, got %v", err)
	}
}

func TestValidateClaimsRejectsGarbageTime(t *testing.T) {
	err := ValidateClaims(Claims{ClaimExpiry: "tomorrow"}, time.Now(), VerifyOptions{})
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}

func TestApplyRegisteredOverride(t *testing.T) {
	opts := MintOptions{Issuer: "iss", Subject: "sub", Audience: []string{"a", "b"}, Scope: "read"}

	kept := Claims{ClaimIssuer: "caller"}
	ApplyRegistered(kept, opts, false)
	if kept[ClaimIssuer] != "caller" {
		t.Fatalf("expected caller issuer to be kept, got %v", kept[ClaimIssuer])
	}
	if kept[ClaimScope] != "read" {
		t.Fatalf("expected scope to be filled, got %v", kept[ClaimScope])
	}

	forced := Claims{ClaimIssuer: "caller"}
	ApplyRegistered(forced, opts, true)
	if forced[ClaimIssuer] != "iss" {
		t.Fatalf("expected issuer override, got %v", forced[ClaimIssuer])
	}
	if aud := forced.Audience(); len(aud) != 2 {
		t.Fatalf("expected two audiences, got %v", aud)
	}
}
