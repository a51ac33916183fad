// Package lease guards responder reservations across service instances with
// redis keys that expire on their own.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 30 * time.Minute
	keyPrefix  = "dispatch:reservation:"
)

// RedisLease takes one SET NX key per responder. The value is the incident id,
// so the instance that already holds it for the same incident re-acquires it.
type RedisLease struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLease(rdb *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLease{rdb: rdb, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context, responderId, incidentId string) (bool, error) {
	key := keyPrefix + responderId
	ok, err := l.rdb.SetNX(ctx, key, incidentId, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	holder, err := l.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry another candidate
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lease %s: %w", key, err)
	}
	if holder != incidentId {
		return false, nil
	}
	if err := l.rdb.Expire(ctx, key, l.ttl).Err(); err != nil {
		return false, fmt.Errorf("lease %s: %w", key, err)
	}
	return true, nil
}

func (l *RedisLease) Release(ctx context.Context, responderId string) error {
	return l.rdb.Del(ctx, keyPrefix+responderId).Err()
}

// Holder returns the incident currently holding the responder, if any.
func (l *RedisLease) Holder(ctx context.Context, responderId string) (string, bool, error) {
	holder, err := l.rdb.Get(ctx, keyPrefix+responderId).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}
