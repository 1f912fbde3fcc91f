package token

import (
	"context"
	"crypto/x509"
)

// ProofContext is the request-side evidence a sender-constrained token is
// checked against. It lives only for the duration of one verify call.
type ProofContext struct {
	Proof string
	HTM   string
	HTU   string
	// Nonce is the server-issued DPoP nonce; empty means none was issued.
	Nonce string
}

// Complete reports whether proof, method and URI are all present.
func (p *ProofContext) Complete() bool {
	return p != nil && p.Proof != "" && p.HTM != "" && p.HTU != ""
}

type proofContextKey struct{}
type clientCertificateKey struct{}

// WithProofContext attaches the proof evidence of the current request to ctx.
// DPoP-bound verification reads it through its default accessor.
func WithProofContext(ctx context.Context, pc ProofContext) context.Context {
	return context.WithValue(ctx, proofContextKey{}, &pc)
}

// ProofContextFrom returns the proof evidence attached to ctx.
func ProofContextFrom(ctx context.Context) (*ProofContext, bool) {
	if ctx == nil {
		return nil, false
	}
	pc, ok := ctx.Value(proofContextKey{}).(*ProofContext)
	return pc, ok && pc != nil
}

// WithClientCertificate attaches the TLS client certificate presented on the
// current connection. Certificate-bound verification reads it.
func WithClientCertificate(ctx context.Context, cert *x509.Certificate) context.Context {
	return context.WithValue(ctx, clientCertificateKey{}, cert)
}

// ClientCertificateFrom returns the client certificate attached to ctx.
func ClientCertificateFrom(ctx context.Context) (*x509.Certificate, bool) {
	if ctx == nil {
		return nil, false
	}
	cert, ok := ctx.Value(clientCertificateKey{}).(*x509.Certificate)
	return cert, ok && cert != nil
}
