package sshcert

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"math"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/ssh"

	"github.com/MrEthical07/goToken/keys"
	"github.com/MrEthical07/goToken/token"
)

// Kind is the service name routed to by the "svc" mint header.
const Kind = "ssh-cert"

// DefaultLifetime applies when neither the claims nor the mint options bound validity.
const DefaultLifetime = time.Hour

// Claim names read at mint and returned by verify.
const (
	ClaimSubjectPub      = "subject_pub"
	ClaimPrincipals      = "principals"
	ClaimCertType        = "cert_type"
	ClaimKeyID           = "key_id"
	ClaimSerial          = "serial"
	ClaimValidAfter      = "valid_after"
	ClaimValidBefore     = "valid_before"
	ClaimCriticalOptions = "critical_options"
	ClaimExtensions      = "extensions"
	ClaimSignedBy        = "signed_by"
)

// Algs are the CA key algorithms the service signs with.
var Algs = []string{ssh.KeyAlgoED25519, ssh.KeyAlgoRSA, ssh.KeyAlgoECDSA256}

// Config configures a Service.
type Config struct {
	Keys      keys.Provider
	CAKid     string
	CAVersion *int
	// DefaultLifetime defaults to one hour.
	DefaultLifetime time.Duration
	Now             func() time.Time
}

// Service issues and checks OpenSSH user and host certificates signed by a
// CA key held by the provider.
type Service struct {
	cfg Config
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Keys == nil {
		return nil, token.Configuration("KeyProviderRequired")
	}
	if cfg.CAKid = strings.TrimSpace(cfg.CAKid); cfg.CAKid == "" {
		return nil, token.Configuration("CAKidRequired")
	}
	if cfg.DefaultLifetime <= 0 {
		cfg.DefaultLifetime = DefaultLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg}, nil
}

func (s *Service) Kind() string { return Kind }

func (s *Service) Variant() token.Variant { return token.VariantNone }

func (s *Service) Supports() token.Capabilities {
	return token.Capabilities{
		Formats: []string{token.FormatSSHCert},
		Algs:    append([]string(nil), Algs...),
	}
}

// JWKS is always empty: SSH CA keys are not published as JWKs.
func (s *Service) JWKS(context.Context) (jose.JSONWebKeySet, error) {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{}}, nil
}

// Mint signs the subject key in claims[subject_pub] and returns the
// certificate as a single authorized_keys line.
func (s *Service) Mint(ctx context.Context, claims token.Claims, opts token.MintOptions) (string, error) {
	if opts.Alg != "" && !isSupported(opts.Alg) {
		return "", token.ErrUnsupportedAlgorithm
	}
	params, err := parseMintParams(claims)
	if err != nil {
		return "", err
	}

	ref, err := s.cfg.Keys.GetKey(ctx, s.cfg.CAKid, s.cfg.CAVersion, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", token.ErrKeyUnavailable
	}
	signer, err := caSigner(ref)
	if err != nil {
		return "", err
	}
	if opts.Alg != "" && signer.PublicKey().Type() != opts.Alg {
		return "", token.ErrKeyMismatch
	}

	now := s.cfg.Now()
	validAfter, validBefore := params.validAfter, params.validBefore
	if validAfter.IsZero() || validBefore.IsZero() {
		lifetime := opts.Lifetime
		if lifetime <= 0 {
			lifetime = s.cfg.DefaultLifetime
		}
		validAfter, validBefore = now, now.Add(lifetime)
	}
	serial := params.serial
	if serial == 0 {
		serial = uint64(now.Unix())
	}

	cert := &ssh.Certificate{
		Key:             params.subject,
		Serial:          serial,
		CertType:        params.certType,
		KeyId:           params.keyID,
		ValidPrincipals: params.principals,
		ValidAfter:      uint64(validAfter.Unix()),
		ValidBefore:     uint64(validBefore.Unix()),
		Permissions: ssh.Permissions{
			CriticalOptions: params.criticalOptions,
			Extensions:      params.extensions,
		},
	}
	if err := cert.SignCert(rand.Reader, signer); err != nil {
		return "", token.ErrKeyMismatch
	}
	line := ssh.MarshalAuthorizedKey(cert)
	return string(bytes.TrimRight(line, "\n")), nil
}

// Verify parses an authorized_keys certificate line, checks it was signed by
// the configured CA, then validity with leeway and audience against the
// principals.
func (s *Service) Verify(ctx context.Context, raw string, opts token.VerifyOptions) (token.Claims, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return nil, token.ErrMalformedToken
	}
	cert, ok := pub.(*ssh.Certificate)
	if !ok {
		return nil, token.ErrMalformedToken
	}
	validAfter, validBefore, forever, err := validity(cert)
	if err != nil {
		return nil, err
	}

	ref, err := s.cfg.Keys.GetKey(ctx, s.cfg.CAKid, s.cfg.CAVersion, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, token.ErrKeyUnavailable
	}
	caPub, err := ref.PublicKey()
	if err != nil {
		return nil, token.ErrKeyUnavailable
	}
	caKey, err := ssh.NewPublicKey(caPub)
	if err != nil {
		return nil, token.ErrKeyUnavailable
	}
	if !bytes.Equal(cert.SignatureKey.Marshal(), caKey.Marshal()) {
		return nil, token.ErrUntrustedAuthority
	}
	if err := checkSignature(cert, validAfter); err != nil {
		return nil, err
	}

	leeway := opts.Leeway
	if leeway < 0 {
		leeway = 0
	}
	now := s.cfg.Now()
	if now.Add(leeway).Unix() < validAfter {
		return nil, token.ErrNotYetValid
	}
	if !forever && now.Add(-leeway).Unix() > validBefore {
		return nil, token.ErrExpired
	}
	// certificates carry no issuer, so a pinned one can never match
	if opts.Issuer != "" {
		return nil, token.ErrIssuerMismatch
	}
	if len(opts.Audience) > 0 && !anyIn(opts.Audience, cert.ValidPrincipals) {
		return nil, token.ErrAudienceMismatch
	}

	return certClaims(cert), nil
}

// validity converts the certificate window to Unix seconds. Bounds past
// math.MaxInt64, other than CertTimeInfinity, are malformed.
func validity(cert *ssh.Certificate) (after, before int64, forever bool, err error) {
	if cert.ValidAfter > math.MaxInt64 {
		return 0, 0, false, token.ErrMalformedToken
	}
	if cert.ValidBefore == ssh.CertTimeInfinity {
		return int64(cert.ValidAfter), 0, true, nil
	}
	if cert.ValidBefore > math.MaxInt64 {
		return 0, 0, false, token.ErrMalformedToken
	}
	return int64(cert.ValidAfter), int64(cert.ValidBefore), false, nil
}

// checkSignature runs ssh.CertChecker with its clock pinned to validAfter,
// so that only the signature and option checks can fail.
func checkSignature(cert *ssh.Certificate, at int64) error {
	supported := make([]string, 0, len(cert.CriticalOptions))
	for opt := range cert.CriticalOptions {
		supported = append(supported, opt)
	}
	checker := &ssh.CertChecker{
		SupportedCriticalOptions: supported,
		Clock:                    func() time.Time { return time.Unix(at, 0) },
	}
	principal := ""
	if len(cert.ValidPrincipals) > 0 {
		principal = cert.ValidPrincipals[0]
	}
	if cert.ValidBefore != ssh.CertTimeInfinity && cert.ValidBefore <= cert.ValidAfter {
		return token.ErrExpired
	}
	if err := checker.CheckCert(principal, cert); err != nil {
		return token.ErrInvalidSignature
	}
	return nil
}

func caSigner(ref keys.KeyRef) (ssh.Signer, error) {
	key, err := ref.Signer()
	if err != nil {
		return nil, token.ErrKeyMismatch
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, token.ErrKeyMismatch
	}
	if _, ok := key.(*rsa.PrivateKey); ok {
		algSigner, ok := signer.(ssh.AlgorithmSigner)
		if !ok {
			return nil, token.ErrKeyMismatch
		}
		return ssh.NewSignerWithAlgorithms(algSigner, []string{ssh.KeyAlgoRSASHA256})
	}
	return signer, nil
}

func certClaims(cert *ssh.Certificate) token.Claims {
	certType := "user"
	if cert.CertType == ssh.HostCert {
		certType = "host"
	}
	critical := make(map[string]any, len(cert.CriticalOptions))
	for k, v := range cert.CriticalOptions {
		critical[k] = v
	}
	extensions := make(map[string]any, len(cert.Extensions))
	for k, v := range cert.Extensions {
		extensions[k] = v
	}
	principals := make([]any, len(cert.ValidPrincipals))
	for i, p := range cert.ValidPrincipals {
		principals[i] = p
	}
	claims := token.Claims{
		ClaimCertType:        certType,
		ClaimKeyID:           cert.KeyId,
		ClaimSerial:          cert.Serial,
		ClaimPrincipals:      principals,
		ClaimValidAfter:      int64(cert.ValidAfter),
		ClaimCriticalOptions: critical,
		ClaimExtensions:      extensions,
		ClaimSignedBy:        ssh.FingerprintSHA256(cert.SignatureKey),
		ClaimSubjectPub:      string(bytes.TrimRight(ssh.MarshalAuthorizedKey(cert.Key), "\n")),
		"active":             true,
	}
	if cert.ValidBefore != ssh.CertTimeInfinity {
		claims[ClaimValidBefore] = int64(cert.ValidBefore)
	}
	return claims
}

func isSupported(alg string) bool {
	for _, a := range Algs {
		if a == alg {
			return true
		}
	}
	return false
}

func anyIn(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
