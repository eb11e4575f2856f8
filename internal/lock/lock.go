// Package lock provides a keyed in-process mutex with bounded wait. The
// claim phase of the send pipeline holds one of these per practice so two
// overlapping send invocations can never claim the same READY touch.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock could not be acquired within the
// caller's wait budget. Invocations must abort cleanly on this error; no
// partial claims exist at that point.
var ErrTimeout = errors.New("lock: wait timeout")

// Keyed hands out one exclusive slot per key. Keys are created on demand and
// never removed; the expected cardinality is small (one per practice).
type Keyed struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewKeyed returns an empty lock registry.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]chan struct{})}
}

func (k *Keyed) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		k.slots[key] = s
	}
	return s
}

// Acquire blocks until the key's slot is free, the wait budget elapses, or
// ctx is cancelled. On success it returns a release function; release is
// idempotent.
func (k *Keyed) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	s := k.slot(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-s })
	}
	return release, nil
}

// TryAcquire attempts to take the slot without waiting.
func (k *Keyed) TryAcquire(key string) (func(), bool) {
	s := k.slot(key)
	select {
	case s <- struct{}{}:
	default:
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { <-s }) }, true
}
