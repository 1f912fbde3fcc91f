package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL covers the proof acceptance window with margin for clock skew.
const DefaultTTL = 5 * time.Minute

// RedisChecker records proof identifiers with SET NX so that concurrent
// presentations of one jti across instances see exactly one winner.
type RedisChecker struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisChecker returns a checker storing keys as "<prefix>:jti:<jti>".
func NewRedisChecker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisChecker {
	if prefix == "" {
		prefix = "gt"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisChecker{redis: client, prefix: prefix, ttl: ttl}
}

func (c *RedisChecker) key(jti string) string {
	return c.prefix + ":jti:" + jti
}

// CheckAndMark reports whether jti was unseen and marks it for the TTL.
func (c *RedisChecker) CheckAndMark(ctx context.Context, jti string) (bool, error) {
	if !validJTI(jti) {
		return false, ErrInvalidJTI
	}
	ok, err := c.redis.SetNX(ctx, c.key(jti), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

func (c *RedisChecker) TTL() time.Duration {
	return c.ttl
}

// Forget removes a recorded jti.
func (c *RedisChecker) Forget(ctx context.Context, jti string) error {
	if err := c.redis.Del(ctx, c.key(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
