package session

import "sync"

// keyedLock is a non-blocking single-writer lock per session id.
type keyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[string]struct{})}
}

// tryLock acquires key and returns its release func, or false if key is already held.
func (l *keyedLock) tryLock(key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}
