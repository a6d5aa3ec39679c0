package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Limiter counts hits per key inside a window. The wizard uses it with limit 1
// so a draft is committed at most once per window.
type Limiter struct {
	c *redis.Client
}

func NewLimiter(c *redis.Client) *Limiter {
	return &Limiter{c: c}
}

// Allow делает INCR по ключу и продлевает TTL окна.
// Возвращает (allowed, currentCount).
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := l.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis limiter")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Release forgets the key so the next Allow starts a new window.
func (l *Limiter) Release(ctx context.Context, key string) error {
	if err := l.c.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis limiter release")
	}
	return nil
}
