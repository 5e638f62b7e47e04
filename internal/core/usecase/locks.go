package usecase

import "sync"

// SourceLocks serializes index writes per source id. Writes for different
// sources run independently.
type SourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sourceLock
}

type sourceLock struct {
	mu   sync.Mutex
	refs int
}

func NewSourceLocks() *SourceLocks {
	return &SourceLocks{locks: make(map[string]*sourceLock)}
}

// Lock blocks until source is free and returns the matching unlock func.
func (l *SourceLocks) Lock(source string) func() {
	l.mu.Lock()
	lock, ok := l.locks[source]
	if !ok {
		lock = &sourceLock{}
		l.locks[source] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, source)
		}
		l.mu.Unlock()
	}
}
