// Package middleware adapts goToken.Engine verification to net/http.
//
// # Guards
//
//   - [Guard] accepts Bearer and DPoP authorization schemes.
//   - [RequireDPoP] accepts only the DPoP scheme and requires a proof header.
//   - [RequireBound] additionally rejects tokens without a cnf binding.
//
// Each guard reads the Authorization header, attaches the request's proof
// evidence (DPoP header, method, URI) and TLS client certificate to the
// context, calls Engine.Verify and stores the verified claims in the request
// context, where [ClaimsFromContext] returns them.
//
// [WithRejectionLimit] counts rejected presentations per client IP in Redis
// and answers 429 once a client exceeds its budget for the window.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or proofs itself.
package middleware
