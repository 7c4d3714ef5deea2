package session

import "sync"

// UserLocks provides per-user mutual exclusion. Two messages from the
// same user are processed one at a time; different users proceed in
// parallel. Locks are created on first use and never reclaimed, which
// is fine at the user counts this serves.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUserLocks creates an empty lock set.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for userID, blocking until it is free.
func (l *UserLocks) Lock(userID string) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for userID.
func (l *UserLocks) Unlock(userID string) {
	l.mu.Lock()
	m := l.locks[userID]
	l.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}
