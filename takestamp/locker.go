package takestamp

import (
	"context"
	"sync"
)

// albumLocks hands out one mutex per album id. Entries are dropped once no
// goroutine holds or waits on them, so the table only grows with contention.
type albumLocks struct {
	mu    sync.Mutex
	locks map[uint]*albumLock
}

type albumLock struct {
	ch   chan struct{}
	refs int
}

func newAlbumLocks() *albumLocks {
	return &albumLocks{locks: make(map[uint]*albumLock)}
}

// acquire blocks until the album is free or ctx is done.
func (l *albumLocks) acquire(ctx context.Context, id uint) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &albumLock{ch: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.release(id, lk)
		}, nil
	case <-ctx.Done():
		l.release(id, lk)
		return nil, ctx.Err()
	}
}

func (l *albumLocks) release(id uint, lk *albumLock) {
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *albumLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
