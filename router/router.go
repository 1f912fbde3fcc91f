package router

import (
	"context"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/goToken/token"
)

// Kind names the router when it is itself registered as a service.
const Kind = "composite"

// Router dispatches mint and verify calls between registered services.
// Its indexes are built once in New and never change, so a Router is safe
// for concurrent use whenever its services are.
type Router struct {
	services    []token.Service
	formatIndex map[string][]token.Service
	algIndex    map[string][]token.Service
	observer    Observer
	strict      bool
}

// New builds a router over services, in registration order.
func New(services []token.Service, opts ...Option) (*Router, error) {
	if len(services) == 0 {
		return nil, token.ErrNoServices
	}
	r := &Router{
		services:    make([]token.Service, 0, len(services)),
		formatIndex: make(map[string][]token.Service),
		algIndex:    make(map[string][]token.Service),
		observer:    nopObserver{},
	}
	for _, svc := range services {
		if svc == nil {
			return nil, token.Configuration("NilService")
		}
		caps := svc.Supports()
		if len(caps.Formats) == 0 || len(caps.Algs) == 0 {
			return nil, token.Configuration("EmptyCapabilities")
		}
		r.services = append(r.services, svc)
		for _, f := range caps.Formats {
			key := strings.ToUpper(f)
			r.formatIndex[key] = appendOnce(r.formatIndex[key], svc)
		}
		for _, a := range caps.Algs {
			key := strings.ToUpper(a)
			r.algIndex[key] = appendOnce(r.algIndex[key], svc)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	return r, nil
}

func appendOnce(list []token.Service, svc token.Service) []token.Service {
	for _, s := range list {
		if s == svc {
			return list
		}
	}
	return append(list, svc)
}

func (r *Router) Kind() string { return Kind }

func (r *Router) Variant() token.Variant { return token.VariantNone }

// Services returns the registered services in registration order.
func (r *Router) Services() []token.Service {
	return append([]token.Service(nil), r.services...)
}

// Mint delegates to the service chosen by SelectForMint.
func (r *Router) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	svc, _ := r.SelectForMint(claims, opts)
	return svc.Mint(ctx, claims, opts)
}

// Verify tries the service chosen by SelectForVerify and then every other
// service in registration order. When none accepts the token the selected
// service's error is returned.
func (r *Router) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	claims, _, err := r.VerifyService(ctx, raw, opts)
	return claims, err
}

// VerifyService is Verify that also reports which service accepted the token.
// On failure the returned service is the selected one.
func (r *Router) VerifyService(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, token.Service, error) {
	primary, decided := r.SelectForVerify(raw)
	claims, primaryErr := primary.Verify(ctx, raw, opts)
	if primaryErr == nil {
		return claims, primary, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, primary, ctxErr
	}
	if r.strict && decided {
		return nil, primary, primaryErr
	}

	for _, alt := range r.services {
		if alt == primary {
			continue
		}
		claims, err := alt.Verify(ctx, raw, opts)
		if err == nil {
			r.observer.VerifyFallback(primary, alt)
			return claims, alt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, primary, ctxErr
		}
	}
	return nil, primary, primaryErr
}

// JWKS merges every backend's key set in registration order. Keys are
// de-duplicated by kid, the first occurrence winning; keys without a kid are
// dropped. Backends that fail are skipped.
func (r *Router) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	sets := make([]jose.JSONWebKeySet, len(r.services))
	errs := make([]error, len(r.services))

	var g errgroup.Group
	for i, svc := range r.services {
		g.Go(func() error {
			sets[i], errs[i] = svc.JWKS(ctx)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return jose.JSONWebKeySet{}, err
	}

	merged := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}
	seen := make(map[string]struct{})
	for i, svc := range r.services {
		if errs[i] != nil {
			r.observer.JWKSBackendError(svc, errs[i])
			continue
		}
		for _, k := range sets[i].Keys {
			if k.KeyID == "" {
				continue
			}
			if _, dup := seen[k.KeyID]; dup {
				continue
			}
			seen[k.KeyID] = struct{}{}
			merged.Keys = append(merged.Keys, k)
		}
	}
	return merged, nil
}

// Supports returns the union of every backend's capabilities, de-duplicated
// case-insensitively with the first spelling kept.
func (r *Router) Supports() token.Capabilities {
	var formats, algs []string
	for _, svc := range r.services {
		caps := svc.Supports()
		formats = append(formats, caps.Formats...)
		algs = append(algs, caps.Algs...)
	}
	return token.Capabilities{Formats: uniqueFold(formats), Algs: uniqueFold(algs)}
}

func uniqueFold(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToUpper(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
