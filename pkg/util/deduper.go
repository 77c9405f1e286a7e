package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 基于 Redis SETNX 的一次性锁；rdb 为 nil 时所有调用都放行
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true if the caller is the first to claim scope+id
// within the TTL. Redis errors fail open.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	if d == nil || d.rdb == nil {
		return true
	}
	key := "dedup:" + scope + ":" + id

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated work",
			zap.String("scope", scope),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// Release 删除锁，让下一次调用可以重新获取
func (d *Deduper) Release(ctx context.Context, scope, id string) {
	if d == nil || d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, "dedup:"+scope+":"+id).Err(); err != nil {
		d.logger.Warn("Redis dedup release failed",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
	}
}
