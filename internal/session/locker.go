package session

import "sync"

// Locker serializes checkout transitions per customer so two tabs cannot
// race on the same cart or draft.
type Locker struct {
	mu    sync.Mutex
	locks map[int]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[int]*lockEntry)}
}

// Lock blocks until the customer's lock is free and returns its release func.
func (l *Locker) Lock(customerID int) func() {
	l.mu.Lock()
	e, ok := l.locks[customerID]
	if !ok {
		e = &lockEntry{}
		l.locks[customerID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, customerID)
		}
		l.mu.Unlock()
	}
}

func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
