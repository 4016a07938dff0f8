/*
Package lock provides ledger.ChainLocker implementations.

IMPLEMENTATIONS:
  Keyed: In-process, one lock per key. Enough when a single server owns the
         database (the default).
  Redis: Distributed lock (bsm/redislock) for several server processes
         sharing one database.

Both honour context cancellation while waiting.
*/
package lock

import (
	"context"
	"sync"

	"github.com/warp/supply-ledger/ledger"
)

var _ ledger.ChainLocker = (*Keyed)(nil)

// Keyed holds one mutex per key. Idle keys are dropped.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *Keyed) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Held returns the number of keys currently tracked.
func (k *Keyed) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
