// Package jwt issues and verifies compact JWS tokens with keys resolved
// through a keys.Provider. It is the plain bearer variant the bound services
// in dpop and mtls wrap.
//
// Verification pins the algorithm named by the unverified header to the
// resolved key's family, so an HMAC header can never be checked against a
// public key.
package jwt
