package sessions

import (
	"context"
	"fmt"
	"sync"
)

// Locks serializes read-modify-write cycles on a session. Entries are
// reference counted and dropped once no caller holds or waits on them.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session lock for id is held and returns its
// release function.
func (l *Locks) Lock(id string) func() {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *Locks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Update loads the session, applies fn and saves the session when fn
// reports a change, all under the session lock. It returns the session as
// seen after fn and whether it was saved.
func Update(ctx context.Context, store Store, locks *Locks, id string, fn func(*Session) bool) (*Session, bool, error) {
	unlock := locks.Lock(id)
	defer unlock()

	sess, err := store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !fn(sess) {
		return sess, false, nil
	}
	if err := store.Save(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("save session: %w", err)
	}
	return sess, true, nil
}
