package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEntries bounds the memory checker.
const DefaultMaxEntries = 100_000

// MemoryChecker is a single-process checker built on sync.Map. Entries
// expire after the TTL; Sweep drops them.
type MemoryChecker struct {
	entries    sync.Map
	count      atomic.Int64
	maxEntries int64
	ttl        time.Duration
	now        func() time.Time
}

// MemoryOption configures a MemoryChecker.
type MemoryOption func(*MemoryChecker)

// WithMaxEntries caps the number of live entries.
func WithMaxEntries(n int) MemoryOption {
	return func(c *MemoryChecker) { c.maxEntries = int64(n) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryChecker) { c.now = now }
}

// NewMemoryChecker returns a checker remembering identifiers for ttl.
func NewMemoryChecker(ttl time.Duration, opts ...MemoryOption) *MemoryChecker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &MemoryChecker{ttl: ttl, maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAndMark reports whether jti was unseen and marks it.
func (c *MemoryChecker) CheckAndMark(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !validJTI(jti) {
		return false, ErrInvalidJTI
	}
	now := c.now().UnixNano()
	entry := &now

	existing, loaded := c.entries.LoadOrStore(jti, entry)
	if loaded {
		seenAt := *existing.(*int64)
		if time.Duration(now-seenAt) < c.ttl {
			return false, nil
		}
		// Expired: exactly one concurrent caller wins the swap.
		return c.entries.CompareAndSwap(jti, existing, entry), nil
	}

	if c.count.Add(1) > c.maxEntries {
		c.entries.Delete(jti)
		c.count.Add(-1)
		return false, ErrCacheFull
	}
	return true, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (c *MemoryChecker) Sweep() int {
	now := c.now().UnixNano()
	dropped := 0
	c.entries.Range(func(key, value any) bool {
		if time.Duration(now-*value.(*int64)) >= c.ttl {
			if c.entries.CompareAndDelete(key, value) {
				c.count.Add(-1)
				dropped++
			}
		}
		return true
	})
	return dropped
}

// TTL returns how long an identifier is remembered.
func (c *MemoryChecker) TTL() time.Duration {
	return c.ttl
}

// Len returns the number of tracked identifiers.
func (c *MemoryChecker) Len() int {
	return int(c.count.Load())
}
