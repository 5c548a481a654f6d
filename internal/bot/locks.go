package bot

import "sync"

// userLocks serializes update handling per user id. The dialogue machines
// assume events for one user arrive strictly one at a time, and Telegram
// delivers webhook requests concurrently, so the transport must provide
// that ordering itself. Locks are reference-counted and dropped once no
// update holds or waits on them, so the map does not grow with every user
// id ever seen.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*refLock)}
}

// lock blocks until the caller is the only handler running for this user.
func (l *userLocks) lock(userID int64) {
	l.mu.Lock()
	rl, ok := l.locks[userID]
	if !ok {
		rl = &refLock{}
		l.locks[userID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
}

// unlock releases the user's lock, removing it from the map when no other
// handler is waiting.
func (l *userLocks) unlock(userID int64) {
	l.mu.Lock()
	rl := l.locks[userID]
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()

	rl.Unlock()
}
