package lock

import (
	"context"
	"sync"
	"time"

	appinv "github.com/erp/stockengine/internal/application/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
)

// MemoryLocker is an in-process KeyLocker. Each key is a one-slot semaphore;
// a waiter gives up with shared.ErrStockBusy once the wait budget is spent.
// It only serializes goroutines of one process.
type MemoryLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// slot is a key's semaphore plus the number of goroutines holding or waiting
// for it; the slot is dropped from the map when refs reaches zero
type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a MemoryLocker. A non-positive wait blocks until
// the context is done.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{
		wait:  wait,
		slots: make(map[string]*slot),
	}
}

// Acquire takes every key in the given order. On failure the keys already
// held are released in reverse order.
func (l *MemoryLocker) Acquire(ctx context.Context, keys ...string) (appinv.Unlock, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := l.acquire(ctx, key); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() error {
		once.Do(func() { l.releaseAll(held) })
		return nil
	}, nil
}

func (l *MemoryLocker) acquire(ctx context.Context, key string) error {
	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key)
		if ctx.Err() == context.DeadlineExceeded {
			return shared.ErrStockBusy
		}
		return ctx.Err()
	}
}

func (l *MemoryLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.release(keys[i])
	}
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	s, ok := l.slots[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-s.ch
	l.unref(key)
}

func (l *MemoryLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, key)
	}
}

// Len returns the number of keys currently held or awaited
func (l *MemoryLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

var _ appinv.KeyLocker = (*MemoryLocker)(nil)
