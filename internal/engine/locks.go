package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// KeyedLocks is an in-process domain.LockManager. Acquire blocks until the
// key is free or ctx is done; ttl is ignored since holders live in-process.
type KeyedLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewKeyedLocks creates an empty lock set.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{held: make(map[string]chan struct{})}
}

// Acquire obtains the lock for key.
func (k *KeyedLocks) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	for {
		k.mu.Lock()
		ch, busy := k.held[key]
		if !busy {
			ch = make(chan struct{})
			k.held[key] = ch
			k.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					k.mu.Lock()
					delete(k.held, key)
					k.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		k.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, fmt.Errorf("engine: lock %s: %w", key, ctx.Err())
		}
	}
}

var _ domain.LockManager = (*KeyedLocks)(nil)

const lockRetry = 50 * time.Millisecond

// acquire wraps a LockManager that may fail fast with ErrLockHeld (the Redis
// one does) and retries until wait elapses.
func acquire(ctx context.Context, lm domain.LockManager, key string, ttl, wait time.Duration) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for {
		unlock, err := lm.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("engine: lock %s: %w", key, domain.ErrLockHeld)
		case <-time.After(lockRetry):
		}
	}
}
