package service

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLock gives at most one holder per key. Waiting is context-aware, so a
// caller that gives up while queued never runs. Entries are dropped once no
// one holds or waits for them.
type KeyedLock[K comparable] struct {
	mu    sync.Mutex
	slots map[K]*keySlot
}

type keySlot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLock[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{slots: make(map[K]*keySlot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and must be called exactly once.
func (l *KeyedLock[K]) Lock(ctx context.Context, key K) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &keySlot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, s)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			l.unref(key, s)
		})
	}, nil
}

func (l *KeyedLock[K]) unref(key K, s *keySlot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// size is the number of keys currently tracked.
func (l *KeyedLock[K]) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
