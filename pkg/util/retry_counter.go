package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 统计连续失败次数；rdb 为 nil 时计数恒为 0
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet increments the counter for key and returns the new count.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if r == nil || r.rdb == nil {
		return 0, nil
	}
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// 首次计数时设置过期
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}
	return count, nil
}

// Reset clears the counter.
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey retry:{scope}:{id}
func FormatRetryKey(scope, id string) string {
	return "retry:" + scope + ":" + id
}
