package token

// Kind classifies every failure surfaced by a token service.
type Kind string

const (
	KindConfiguration Kind = "ConfigurationError"
	KindMalformed     Kind = "MalformedInput"
	KindCrypto        Kind = "CryptoFailure"
	KindTemporal      Kind = "TemporalViolation"
	KindIdentity      Kind = "IdentityMismatch"
	KindBinding       Kind = "BindingFailure"
	KindReplay        Kind = "ReplayDetected"
)

// Error is the only error type token services return for verification and
// minting failures. Its message carries the kind and a short reason phrase and
// nothing else: no key material, no proof content, no claim values.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Reason
}

// Is matches another *Error of the same kind. A target without a reason
// matches every reason of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Configuration returns a ConfigurationError with reason.
func Configuration(reason string) error { return newError(KindConfiguration, reason) }

// Malformed returns a MalformedInput error with reason.
func Malformed(reason string) error { return newError(KindMalformed, reason) }

// Crypto returns a CryptoFailure error with reason.
func Crypto(reason string) error { return newError(KindCrypto, reason) }

// Temporal returns a TemporalViolation error with reason.
func Temporal(reason string) error { return newError(KindTemporal, reason) }

// Identity returns an IdentityMismatch error with reason.
func Identity(reason string) error { return newError(KindIdentity, reason) }

// Binding returns a BindingFailure error with reason.
func Binding(reason string) error { return newError(KindBinding, reason) }

// Replay returns a ReplayDetected error with reason.
func Replay(reason string) error { return newError(KindReplay, reason) }

// Kind sentinels. errors.Is(err, ErrBindingFailure) holds for every binding reason.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrMalformedInput    = &Error{Kind: KindMalformed}
	ErrCryptoFailure     = &Error{Kind: KindCrypto}
	ErrTemporalViolation = &Error{Kind: KindTemporal}
	ErrIdentityMismatch  = &Error{Kind: KindIdentity}
	ErrBindingFailure    = &Error{Kind: KindBinding}
	ErrReplayDetected    = &Error{Kind: KindReplay}
)

// Reason sentinels.
var (
	ErrNoServices           = &Error{Kind: KindConfiguration, Reason: "NoServices"}
	ErrUnsupportedAlgorithm = &Error{Kind: KindConfiguration, Reason: "UnsupportedAlgorithm"}
	ErrKeyUnavailable       = &Error{Kind: KindConfiguration, Reason: "KeyUnavailable"}
	ErrKeyMismatch          = &Error{Kind: KindConfiguration, Reason: "KeyAlgorithmMismatch"}

	ErrMalformedToken     = &Error{Kind: KindMalformed, Reason: "MalformedToken"}
	ErrMalformedProof     = &Error{Kind: KindMalformed, Reason: "MalformedProof"}
	ErrUnsupportedVersion = &Error{Kind: KindMalformed, Reason: "UnsupportedVersion"}
	ErrDisallowedAlg      = &Error{Kind: KindMalformed, Reason: "DisallowedAlgorithm"}

	ErrInvalidSignature      = &Error{Kind: KindCrypto, Reason: "InvalidSignature"}
	ErrUnknownKey            = &Error{Kind: KindCrypto, Reason: "UnknownKey"}
	ErrVerificationFailed    = &Error{Kind: KindCrypto, Reason: "VerificationFailed"}
	ErrInvalidProofSignature = &Error{Kind: KindCrypto, Reason: "InvalidProofSignature"}
	ErrUntrustedAuthority    = &Error{Kind: KindCrypto, Reason: "UntrustedAuthority"}

	ErrExpired        = &Error{Kind: KindTemporal, Reason: "Expired"}
	ErrNotYetValid    = &Error{Kind: KindTemporal, Reason: "NotYetValid"}
	ErrIssuedInFuture = &Error{Kind: KindTemporal, Reason: "IssuedInFuture"}

	ErrIssuerMismatch   = &Error{Kind: KindIdentity, Reason: "IssuerMismatch"}
	ErrAudienceMismatch = &Error{Kind: KindIdentity, Reason: "AudienceMismatch"}

	ErrMissingBinding  = &Error{Kind: KindBinding, Reason: "MissingBinding"}
	ErrMissingContext  = &Error{Kind: KindBinding, Reason: "MissingContext"}
	ErrBindingMismatch = &Error{Kind: KindBinding, Reason: "BindingMismatch"}
	ErrMethodMismatch  = &Error{Kind: KindBinding, Reason: "MethodMismatch"}
	ErrURIMismatch     = &Error{Kind: KindBinding, Reason: "URIMismatch"}
	ErrStaleProof      = &Error{Kind: KindBinding, Reason: "StaleProof"}
	ErrFutureProof     = &Error{Kind: KindBinding, Reason: "FutureProof"}
	ErrNonceMismatch   = &Error{Kind: KindBinding, Reason: "NonceMismatch"}
	ErrMissingJTI      = &Error{Kind: KindBinding, Reason: "MissingJTI"}

	ErrProofReplayed          = &Error{Kind: KindReplay, Reason: "ProofReplayed"}
	ErrReplayCheckUnavailable = &Error{Kind: KindReplay, Reason: "ReplayCheckUnavailable"}
)

// KindOf reports the kind of err, or "" when err is not a token error.
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
