package order

import (
	"context"
	"sync"
)

// refLocks serializes work per order reference. Entries are dropped once
// nobody holds or waits for them.
type refLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newRefLocks() *refLocks {
	return &refLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until ref is free or ctx is done.
func (l *refLocks) Lock(ctx context.Context, ref string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[ref]
	if !ok {
		lock = &refLock{ch: make(chan struct{}, 1)}
		l.locks[ref] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.ch
				l.release(ref, lock)
			})
		}, nil
	case <-ctx.Done():
		l.release(ref, lock)
		return nil, ctx.Err()
	}
}

func (l *refLocks) release(ref string, lock *refLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, ref)
	}
}

func (l *refLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
