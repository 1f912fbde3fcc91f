// Package goToken provides a pluggable token issuance and verification engine.
//
// An [Engine] is assembled by [Builder] from a [Config] and a key provider. It
// registers the configured services (plain JWT, DPoP-bound JWT, certificate-bound
// JWT, PASETO v4 and OpenSSH certificates) with a router that picks one service
// per call, and wraps every call with metrics, audit events and logging.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// Format-specific work lives in the service packages (jwt, dpop, mtls, paseto,
// sshcert) and dispatch lives in router. This package only composes them and
// must not be imported by any of them.
package goToken
