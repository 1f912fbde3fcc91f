package replay

import "errors"

var (
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidJTI is returned for empty or oversized proof identifiers.
	ErrInvalidJTI = errors.New("invalid jti")
	// ErrCacheFull is returned when the memory checker reached its entry limit.
	ErrCacheFull = errors.New("replay cache full")
)

// MaxJTILength bounds the stored identifier size.
const MaxJTILength = 1024

func validJTI(jti string) bool {
	return jti != "" && len(jti) <= MaxJTILength
}
