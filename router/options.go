package router

import "github.com/MrEthical07/goToken/token"

// Observer receives routing events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// VerifyFallback is called when a backend other than the selected one
	// accepted a token.
	VerifyFallback(selected, accepted token.Service)
	// JWKSBackendError is called for every backend whose key set could not be
	// fetched; the backend is left out of the merged set.
	JWKSBackendError(svc token.Service, err error)
}

// Option configures a Router.
type Option func(*Router)

// WithObserver installs obs.
func WithObserver(obs Observer) Option {
	return func(r *Router) { r.observer = obs }
}

// WithStrictFallback limits verify fallback to tokens whose backend was not
// identified by a format-specific rule. A token sniffed as, say, DPoP-bound
// then fails with the DPoP backend's error instead of being retried as a
// plain bearer token.
func WithStrictFallback() Option {
	return func(r *Router) { r.strict = true }
}

type nopObserver struct{}

func (nopObserver) VerifyFallback(token.Service, token.Service) {}

func (nopObserver) JWKSBackendError(token.Service, error) {}
