package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/token"
)

// Scheme is an Authorization header scheme a guard accepts.
type Scheme int

const (
	SchemeAny Scheme = iota
	SchemeDPoP
)

const (
	headerDPoP      = "DPoP"
	headerRequestID = "X-Request-ID"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by a guard.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(token.Claims)
	return claims, ok
}

// Option customizes a guard.
type Option func(*guard)

// WithPublicURL sets the scheme and host used to rebuild htu when the server
// sits behind a proxy, e.g. "https://api.example.com".
func WithPublicURL(base string) Option {
	return func(g *guard) { g.publicURL = strings.TrimRight(base, "/") }
}

// WithVerifyOptions replaces the engine's default verify options.
func WithVerifyOptions(opts token.VerifyOptions) Option {
	return func(g *guard) {
		g.verify = opts
		g.verifySet = true
	}
}

// WithNonce supplies the DPoP nonce the server issued for r, if any.
func WithNonce(fn func(r *http.Request) string) Option {
	return func(g *guard) { g.nonce = fn }
}

// WithErrorHandler replaces the default 401 response.
func WithErrorHandler(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(g *guard) { g.onError = fn }
}

// WithRejectionLimit throttles clients by IP once they have presented
// maxFailures rejected tokens within window. Counters live in Redis so the
// budget is shared by every instance. Redis errors never block a request.
func WithRejectionLimit(rdb redis.UniversalClient, maxFailures int, window time.Duration) Option {
	return func(g *guard) {
		g.limiter = rate.New(rdb, rate.Config{MaxFailures: maxFailures, Window: window})
	}
}

// ErrRateLimited is passed to the error handler for throttled clients.
var ErrRateLimited = rate.ErrRateLimited

type guard struct {
	engine      *goToken.Engine
	scheme      Scheme
	requireBind bool
	publicURL   string
	verify      token.VerifyOptions
	verifySet   bool
	nonce       func(r *http.Request) string
	onError     func(w http.ResponseWriter, r *http.Request, err error)
	limiter     *rate.Limiter
}

// errUnauthorized is reported when the request carries no usable credentials.
var errUnauthorized = errors.New("middleware: missing or malformed authorization")

// Guard verifies the request's access token and rejects it with 401 on failure.
func Guard(engine *goToken.Engine, opts ...Option) func(http.Handler) http.Handler {
	return newGuard(engine, SchemeAny, false, opts).middleware
}

func newGuard(engine *goToken.Engine, scheme Scheme, requireBind bool, opts []Option) *guard {
	g := &guard{engine: engine, scheme: scheme, requireBind: requireBind}
	for _, opt := range opts {
		opt(g)
	}
	if !g.verifySet {
		g.verify = engine.DefaultVerifyOptions()
	}
	if g.onError == nil {
		g.onError = writeUnauthorized
	}
	return g
}

func (g *guard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.engine == nil {
			g.onError(w, r, goToken.ErrEngineNotReady)
			return
		}

		client := clientIP(r)
		if errors.Is(g.limiter.Check(r.Context(), client), rate.ErrRateLimited) {
			g.onError(w, r, ErrRateLimited)
			return
		}
		reject := func(err error) {
			if token.KindOf(err) != token.KindConfiguration {
				_ = g.limiter.RecordFailure(r.Context(), client)
			}
			g.onError(w, r, err)
		}

		scheme, raw, ok := authorization(r.Header.Get("Authorization"))
		if !ok || (g.scheme == SchemeDPoP && scheme != headerDPoP) {
			g.onError(w, r, errUnauthorized)
			return
		}

		ctx := g.requestContext(r, client)
		if proofs := r.Header.Values(headerDPoP); len(proofs) > 0 {
			if len(proofs) != 1 {
				reject(token.ErrMalformedToken)
				return
			}
			pc := token.ProofContext{Proof: proofs[0], HTM: r.Method, HTU: g.requestURI(r)}
			if g.nonce != nil {
				pc.Nonce = g.nonce(r)
			}
			ctx = token.WithProofContext(ctx, pc)
		} else if scheme == headerDPoP {
			reject(token.ErrMissingContext)
			return
		}

		claims, err := g.engine.Verify(ctx, raw, g.verify)
		if err != nil {
			reject(err)
			return
		}
		if g.requireBind {
			if _, bound := claims.Confirmation(); !bound {
				reject(token.ErrMissingBinding)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims)))
	})
}

func (g *guard) requestContext(r *http.Request, client string) context.Context {
	ctx := r.Context()
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		ctx = token.WithClientCertificate(ctx, r.TLS.PeerCertificates[0])
	}
	if client != "" {
		ctx = goToken.WithClientIP(ctx, client)
	}
	if id := r.Header.Get(headerRequestID); id != "" {
		ctx = goToken.WithRequestID(ctx, id)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

// requestURI rebuilds the absolute request URI without query or fragment.
func (g *guard) requestURI(r *http.Request) string {
	if g.publicURL != "" {
		return g.publicURL + r.URL.EscapedPath()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.EscapedPath()
}

// authorization splits an Authorization header into its scheme and token.
// Scheme names are case-insensitive.
func authorization(value string) (string, string, bool) {
	name, raw, ok := strings.Cut(value, " ")
	if !ok {
		return "", "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", "", false
	}
	switch {
	case strings.EqualFold(name, "Bearer"):
		return "Bearer", raw, true
	case strings.EqualFold(name, headerDPoP):
		return headerDPoP, raw, true
	default:
		return "", "", false
	}
}

func writeUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, ErrRateLimited) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	switch token.KindOf(err) {
	case token.KindBinding, token.KindReplay:
		w.Header().Set("WWW-Authenticate", `DPoP error="invalid_dpop_proof"`)
	case token.KindConfiguration:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		if errors.Is(err, errUnauthorized) {
			w.Header().Set("WWW-Authenticate", `Bearer`)
		} else {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
