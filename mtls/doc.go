// Package mtls binds JWT access tokens to the TLS client certificate they
// were issued to (RFC 8705).
package mtls
