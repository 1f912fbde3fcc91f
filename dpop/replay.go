package dpop

import (
	"context"
	"time"
)

// ReplayChecker records proof identifiers. CheckAndMark atomically reports
// whether jti was unseen and marks it seen. Implementations must serialise
// concurrent calls for the same jti so that exactly one caller sees fresh.
type ReplayChecker interface {
	CheckAndMark(ctx context.Context, jti string) (fresh bool, err error)
}

// ttlReporter is implemented by checkers that forget identifiers after a
// fixed retention period.
type ttlReporter interface {
	TTL() time.Duration
}

// ReplayCheckerFunc adapts a function to ReplayChecker.
type ReplayCheckerFunc func(ctx context.Context, jti string) (bool, error)

// CheckAndMark calls f.
func (f ReplayCheckerFunc) CheckAndMark(ctx context.Context, jti string) (bool, error) {
	return f(ctx, jti)
}
