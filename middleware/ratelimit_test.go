package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestGuardRejectionLimit(t *testing.T) {
	e := newEngine(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := Guard(e, WithRejectionLimit(rdb, 2, time.Minute))

	bad := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		r.RemoteAddr = addr
		r.Header.Set("Authorization", "Bearer not.a.token")
		rec, _ := serve(h, r)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := bad("198.51.100.7:4000"); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, code)
		}
	}
	if code := bad("198.51.100.7:4001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is spent, got %d", code)
	}

	good := httptest.NewRequest(http.MethodGet, target, nil)
	good.RemoteAddr = "198.51.100.7:4002"
	good.Header.Set("Authorization", "Bearer "+mint(t, e, context.Background(), ""))
	if rec, _ := serve(h, good); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled client must be refused before verification, got %d", rec.Code)
	}

	if code := bad("203.0.113.9:4000"); code != http.StatusUnauthorized {
		t.Fatalf("other clients keep their budget, got %d", code)
	}

	mr.FastForward(2 * time.Minute)
	if code := bad("198.51.100.7:4003"); code != http.StatusUnauthorized {
		t.Fatalf("expected budget to reset after the window, got %d", code)
	}
}

func TestGuardRejectionLimitIgnoresMissingCredentials(t *testing.T) {
	e := newEngine(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h := Guard(e, WithRejectionLimit(rdb, 1, time.Minute))

	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		if rec, _ := serve(h, r); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
}

func TestGuardRejectionLimitFailsOpen(t *testing.T) {
	e := newEngine(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.Header.Set("Authorization", "Bearer "+mint(t, e, context.Background(), ""))
	if rec, _ := serve(Guard(e, WithRejectionLimit(rdb, 1, time.Minute)), r); rec.Code != http.StatusNoContent {
		t.Fatalf("expected redis outage to not block valid tokens, got %d", rec.Code)
	}
}
