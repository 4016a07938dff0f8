package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/supply-ledger/ledger"
)

var _ ledger.ChainLocker = (*Redis)(nil)

// Redis obtains chain locks from a shared Redis instance.
type Redis struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	prefix  string
	log     *logrus.Logger
}

// NewRedis wraps a connected go-redis client. ttl bounds how long a crashed
// holder can keep a chain locked.
func NewRedis(rdb *redis.Client, ttl time.Duration, log *logrus.Logger) *Redis {
	return &Redis{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		prefix:  "supply-ledger:chain:",
		log:     log,
	}
}

// Lock retries until obtained, ctx is done or ttl elapses.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.WithFields(logrus.Fields{
				"module": "lock",
				"key":    key,
			}).Warn("failed to release chain lock: " + err.Error())
		}
	}, nil
}
