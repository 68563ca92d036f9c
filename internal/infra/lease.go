package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld means another owner currently holds the lease.
var ErrLeaseHeld = errors.New("lease held by another owner")

// ErrLeaseUnavailable means the backend could not be asked (network, breaker open).
var ErrLeaseUnavailable = errors.New("lease backend unavailable")

// Lease is a held short-TTL distributed lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseBackend hands out per-key leases shared by every process.
type LeaseBackend interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const leaseKeyPrefix = "claim:barcode:"

// RedisLeases implements LeaseBackend on top of bsm/redislock. Calls go
// through the circuit breaker so a Redis outage degrades quickly.
type RedisLeases struct {
	locker *redislock.Client
	cb     *CircuitBreaker
}

func NewRedisLeases(rdb *redis.Client, cb *CircuitBreaker) *RedisLeases {
	return &RedisLeases{locker: redislock.New(rdb), cb: cb}
}

func (r *RedisLeases) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	var lock *redislock.Lock
	held := false
	err := r.cb.Execute(func() error {
		l, err := r.locker.Obtain(ctx, leaseKeyPrefix+key, ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// contention is a healthy answer from Redis
			held = true
			return nil
		}
		if err != nil {
			return err
		}
		lock = l
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLeaseUnavailable, err)
	}
	if held {
		return nil, ErrLeaseHeld
	}
	return lock, nil
}
