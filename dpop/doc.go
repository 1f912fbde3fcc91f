// Package dpop binds JWT access tokens to a client key (RFC 9449).
//
// Minting stamps cnf.jkt with the holder key's thumbprint. Verification, when
// enforced, checks the request's DPoP proof after the base signature check:
// binding, proof context, proof signature, thumbprint, method, URI,
// freshness, nonce and jti replay, in that order.
//
// Replay storage is not part of this package; callers supply a [ReplayChecker].
package dpop
