package lock

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/supply-ledger/ledger"
)

// newTestRedis connects to REDIS_ADDRESS or skips.
func newTestRedis(t *testing.T, ttl time.Duration) *Redis {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	log := logrus.New()
	log.SetOutput(io.Discard)
	r := NewRedis(rdb, ttl, log)
	r.prefix = "supply-ledger-test:" + t.Name() + ":"
	return r
}

func TestRedis_LockAndRelease(t *testing.T) {
	r := newTestRedis(t, time.Second)
	ctx := context.Background()

	unlock, err := r.Lock(ctx, "supply:flour")
	require.NoError(t, err)
	unlock()

	unlock, err = r.Lock(ctx, "supply:flour")
	require.NoError(t, err, "released lock can be obtained again")
	unlock()
}

func TestRedis_HeldLockTimesOut(t *testing.T) {
	r := newTestRedis(t, 5*time.Second)

	unlock, err := r.Lock(context.Background(), "supply:flour")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "supply:flour")

	assert.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrLockNotObtained)
}
